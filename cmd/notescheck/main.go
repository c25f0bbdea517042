// Command notescheck runs smoke and end-to-end checks against the Session
// Notes Reviewer.
package main

import (
	"os"

	"github.com/Jython1415/mathnasium-session-notes/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
