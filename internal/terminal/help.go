package terminal

const helpText = `
FILE & DIRECTORY OPERATIONS:
  ls                    - List files and directories in current location
  cd <directory>        - Change to specified directory (use .. for parent)
  pwd                   - Show current directory path
  mkdir <name>          - Create a new directory
  touch <filename>      - Create a new empty file
  rm <file|dir>         - Delete specified file or directory
  cat <filename>        - Display file contents (supports text and images)
  upload [name]         - Upload a local file, optionally under a new name

FILE CONTENT OPERATIONS:
  echo <text>           - Display text or write to file with > or >>
  echo <text> > <file>  - Write text to file (overwrites existing content)
  echo <text> >> <file> - Append text to file (preserves existing content)

SYSTEM & NAVIGATION:
  clear                 - Clear the terminal screen
  history               - Show command history
  help                  - Display this help information

NETWORK DIAGNOSTICS:
  networkquality start  - Run comprehensive network speed test
  networkquality status - Show current test status and results
  networkquality logs   - View detailed test logs
  networkquality help   - Show network testing command help

ACCOUNT MANAGEMENT:
  logout                - Sign out of current account
  deleteaccount         - Permanently delete account and all data

TIPS & SHORTCUTS:
  • Use Ctrl-P/Ctrl-N to navigate command history
  • Tab accepts the first AI suggestion shown below the prompt
  • Use 'networkquality status' during tests for real-time progress
  • File operations support both absolute and relative paths

EXAMPLES:
  mkdir projects
  cd projects
  echo 'Hello World' > welcome.txt
  cat welcome.txt
  networkquality start

NOTE: The AI just provides terminal commands in suggestions which means it is not aware of the application's limitations.
`

const networkHelpText = `NETWORK QUALITY COMMANDS:
  networkquality start  - Run a network speed test (ping, jitter, download, upload)
  networkquality status - Show progress and results of the current or last test
  networkquality logs   - Show the 20 most recent test log lines
  networkquality help   - Show this help

The test runs in the background; keep using the terminal while it runs.`
