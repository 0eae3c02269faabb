// Package command implements the operator console: a line-based command
// interpreter on standard input for controlling a running session.
package command

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/barbourakais/Ai-audio-chatbot/internal/convo"
	"github.com/barbourakais/Ai-audio-chatbot/internal/orchestrator"
	"github.com/barbourakais/Ai-audio-chatbot/internal/retrieval"
)

// Listener is the subset of the supervisor the console controls.
type Listener interface {
	Pause()
	Resume()
	Paused() bool
}

// StateReporter exposes the pipeline state for the status command.
type StateReporter interface {
	State() orchestrator.State
}

// HandlerFunc executes one console command. args excludes the command word.
// The returned string is printed to the console output.
type HandlerFunc func(ctx context.Context, args []string) (string, error)

type entry struct {
	usage   string
	help    string
	handler HandlerFunc
}

// Console reads commands line by line and dispatches them to registered
// handlers. Run returns on EOF, on the quit command, or when ctx is done
// before the next line arrives.
type Console struct {
	in       io.Reader
	out      io.Writer
	log      *slog.Logger
	commands map[string]entry
	quit     context.CancelFunc
}

// Deps holds everything the built-in command set operates on. Nil fields
// disable the commands that need them.
type Deps struct {
	Listener  Listener
	Pipeline  StateReporter
	Retrieval *retrieval.Service
	Memory    *convo.Memory

	// KnowledgePath is the document reloaded by the rebuild command.
	KnowledgePath string

	// TopK is how many chunks the query command prints. Default 3.
	TopK int

	// Quit stops the whole session; invoked by the quit command.
	Quit context.CancelFunc
}

// New creates a Console with the built-in command set registered.
func New(in io.Reader, out io.Writer, log *slog.Logger, deps Deps) *Console {
	if log == nil {
		log = slog.Default()
	}
	c := &Console{
		in:       in,
		out:      out,
		log:      log,
		commands: make(map[string]entry),
		quit:     deps.Quit,
	}
	c.registerBuiltins(deps)
	return c
}

// Register adds or replaces a command.
func (c *Console) Register(name, usage, help string, handler HandlerFunc) {
	c.commands[name] = entry{usage: usage, help: help, handler: handler}
}

func (c *Console) registerBuiltins(deps Deps) {
	if deps.Listener != nil {
		c.Register("stop", "stop", "pause listening", func(context.Context, []string) (string, error) {
			deps.Listener.Pause()
			return "listening paused", nil
		})
		c.Register("start", "start", "resume listening", func(context.Context, []string) (string, error) {
			deps.Listener.Resume()
			return "listening resumed", nil
		})
	}

	if deps.Retrieval != nil && deps.KnowledgePath != "" {
		c.Register("rebuild", "rebuild", "re-chunk and re-embed the knowledge base", func(ctx context.Context, _ []string) (string, error) {
			stats, err := deps.Retrieval.RebuildFromFile(ctx, deps.KnowledgePath)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("index rebuilt: %d chunks (%d embedded, %d reused) in %s",
				stats.Chunks, stats.Embedded, stats.Reused, stats.Took.Round(time.Millisecond)), nil
		})
	}

	if deps.Retrieval != nil {
		topK := deps.TopK
		if topK <= 0 {
			topK = 3
		}
		c.Register("query", "query <text>", "run a retrieval query and print the top chunks", func(ctx context.Context, args []string) (string, error) {
			if len(args) == 0 {
				return "", fmt.Errorf("usage: query <text>")
			}
			results, err := deps.Retrieval.Query(ctx, strings.Join(args, " "), topK)
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return "no results", nil
			}
			var b strings.Builder
			for i, r := range results {
				fmt.Fprintf(&b, "%d. [%.3f] %s: %s\n",
					i+1, r.Score, r.Entry.Chunk.SectionID, r.Entry.Chunk.Text)
			}
			return strings.TrimSuffix(b.String(), "\n"), nil
		})
	}

	if deps.Memory != nil {
		c.Register("clear", "clear", "drop the conversation history", func(ctx context.Context, _ []string) (string, error) {
			if err := deps.Memory.Clear(ctx); err != nil {
				return "", err
			}
			return "conversation cleared", nil
		})
		c.Register("export", "export <path>", "write the conversation history as JSON", func(_ context.Context, args []string) (string, error) {
			if len(args) != 1 {
				return "", fmt.Errorf("usage: export <path>")
			}
			if err := deps.Memory.ExportFile(args[0]); err != nil {
				return "", err
			}
			return "exported to " + args[0], nil
		})
	}

	c.Register("status", "status", "show pipeline state", func(ctx context.Context, _ []string) (string, error) {
		var b strings.Builder
		if deps.Pipeline != nil {
			fmt.Fprintf(&b, "state: %s\n", deps.Pipeline.State())
		}
		if deps.Listener != nil {
			fmt.Fprintf(&b, "paused: %t\n", deps.Listener.Paused())
		}
		if deps.Retrieval != nil {
			if n, err := deps.Retrieval.Len(ctx); err == nil {
				fmt.Fprintf(&b, "indexed chunks: %d\n", n)
			}
		}
		if deps.Memory != nil {
			fmt.Fprintf(&b, "conversation turns: %d\n", deps.Memory.Len())
		}
		return strings.TrimSuffix(b.String(), "\n"), nil
	})

	c.Register("help", "help", "list available commands", func(context.Context, []string) (string, error) {
		names := make([]string, 0, len(c.commands))
		for name := range c.commands {
			names = append(names, name)
		}
		sort.Strings(names)
		var b strings.Builder
		for _, name := range names {
			e := c.commands[name]
			fmt.Fprintf(&b, "%-16s %s\n", e.usage, e.help)
		}
		return strings.TrimSuffix(b.String(), "\n"), nil
	})

	quitHandler := func(context.Context, []string) (string, error) {
		if c.quit != nil {
			c.quit()
		}
		return "shutting down", nil
	}
	c.Register("quit", "quit", "end the session", quitHandler)
	c.Register("exit", "exit", "end the session", quitHandler)
}

// Run reads and dispatches commands until the input ends, a quit command
// runs, or ctx is done. Reader errors other than EOF are returned.
func (c *Console) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(c.in)
	fmt.Fprint(c.out, "> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			c.Dispatch(ctx, line)
			if name := strings.Fields(line)[0]; name == "quit" || name == "exit" {
				return nil
			}
		}
		fmt.Fprint(c.out, "> ")
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("command: read input: %w", err)
	}
	return nil
}

// Dispatch parses and executes one command line, printing the outcome.
func (c *Console) Dispatch(ctx context.Context, line string) {
	fields := strings.Fields(line)
	name := strings.ToLower(fields[0])

	e, ok := c.commands[name]
	if !ok {
		fmt.Fprintf(c.out, "unknown command %q, try help\n", name)
		return
	}
	out, err := e.handler(ctx, fields[1:])
	if err != nil {
		c.log.Warn("console command failed", "command", name, "error", err)
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	if out != "" {
		fmt.Fprintln(c.out, out)
	}
}
