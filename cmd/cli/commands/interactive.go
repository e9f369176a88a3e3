package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// commands that make no sense inside a session
var sessionExcluded = map[string]bool{
	"interactive": true,
	"completion":  true,
	"help":        true,
	"serve":       true,
}

// InteractiveCmd creates the interactive command
func InteractiveCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Start an interactive session (load the directory once, run multiple commands)",
		Long: `Start an interactive session that runs commands against one engine.
Without a databaseURL, shifts only live as long as the session.
Type 'help' to list commands and 'exit' or 'quit' to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := newSession(cmd.Parent(), os.Stdout)
			fmt.Fprintln(s.out, "\n🚀 Starting interactive session...")
			fmt.Fprintln(s.out, "Type 'help' for available commands, 'exit' or 'quit' to leave")
			return s.run(os.Stdin)
		},
	}
}

type session struct {
	commands map[string]*cobra.Command
	out      io.Writer
}

func newSession(root *cobra.Command, out io.Writer) *session {
	s := &session{commands: make(map[string]*cobra.Command), out: out}
	for _, c := range root.Commands() {
		if !sessionExcluded[c.Name()] {
			s.commands[c.Name()] = c
		}
	}
	return s
}

func (s *session) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			break
		}
		if !s.dispatch(scanner.Text()) {
			fmt.Fprintln(s.out, "👋 Goodbye!")
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	return nil
}

// dispatch runs one input line and reports whether the session should continue
func (s *session) dispatch(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	name := fields[0]
	switch name {
	case "exit", "quit":
		return false
	case "help":
		s.printHelp()
		return true
	}

	target, ok := s.commands[name]
	if !ok {
		fmt.Fprintf(s.out, "❌ Unknown command: %s (type 'help' for available commands)\n\n", name)
		return true
	}
	if err := runInSession(target, fields[1:]); err != nil {
		fmt.Fprintf(s.out, "❌ Error: %v\n\n", err)
	}
	return true
}

// runInSession calls the command's RunE directly so PersistentPreRunE does not re-initialise the app
func runInSession(cmd *cobra.Command, args []string) error {
	cmd.Flags().VisitAll(resetFlag)
	if err := cmd.ParseFlags(args); err != nil {
		return fmt.Errorf("error parsing flags: %w", err)
	}

	args = cmd.Flags().Args()
	if cmd.Args != nil {
		if err := cmd.Args(cmd, args); err != nil {
			return err
		}
	}
	return cmd.RunE(cmd, args)
}

// resetFlag undoes the previous invocation's flag values
func resetFlag(flag *pflag.Flag) {
	flag.Changed = false
	if slice, ok := flag.Value.(pflag.SliceValue); ok {
		_ = slice.Replace(nil)
		return
	}
	_ = flag.Value.Set(flag.DefValue)
}

func (s *session) printHelp() {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(s.out, "\nAvailable commands:")
	for _, name := range names {
		fmt.Fprintf(s.out, "  %-50s %s\n", s.commands[name].Use, s.commands[name].Short)
	}
	fmt.Fprintf(s.out, "\n  %-50s %s\n", "help", "Show this help message")
	fmt.Fprintf(s.out, "  %-50s %s\n\n", "exit, quit", "Exit the interactive session")
}
