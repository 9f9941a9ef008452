package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"hamster-duel/internal/game"
	"hamster-duel/internal/input"
	"hamster-duel/internal/peer"
)

const consoleHelp = `commands:
  down <Code>    press a key (KeyW, ArrowUp, ShiftLeft, Slash, ...)
  up <Code>      release a key
  repeat <Code>  auto-repeat press (ignored by the router)
  tap <Code>     press and release
  reset          press R
  state          print the match state
  snap [file]    save the current frame as PNG
  help           show this text
  quit           leave the duel`

var errQuit = errors.New("quit")

// keySink is the part of *peer.Runner the console drives.
type keySink interface {
	Key(ctx context.Context, e input.Edge) error
	Snapshot(ctx context.Context) (game.Snapshot, error)
}

// snapshotter writes the latest rendered frame.
type snapshotter interface {
	SavePNG(path string) error
}

// console turns stdin lines into key edges. Browsers deliver KeyboardEvent
// codes; here the user types them.
type console struct {
	keys    keySink
	frames  snapshotter
	out     io.Writer
	snapDir string
	snapSeq int
	outMu   sync.Mutex
}

func newConsole(keys keySink, frames snapshotter, out io.Writer, snapDir string) *console {
	return &console{keys: keys, frames: frames, out: out, snapDir: snapDir}
}

// run reads commands until EOF, quit or ctx ends.
func (c *console) run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		err := c.exec(ctx, sc.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if errors.Is(err, peer.ErrStopped) {
			return err
		}
		if err != nil {
			c.printf("⚠️ %v\n", err)
		}
	}
	return sc.Err()
}

func (c *console) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "down", "up", "repeat", "tap":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <Code>", cmd)
		}
		return c.key(ctx, cmd, args[0])
	case "reset":
		return c.key(ctx, "tap", input.ResetKey)
	case "state":
		snap, err := c.keys.Snapshot(ctx)
		if err != nil {
			return err
		}
		c.printState(snap)
		return nil
	case "snap":
		return c.snap(args)
	case "help", "?":
		c.printf("%s\n", consoleHelp)
		return nil
	case "quit", "exit":
		return errQuit
	}
	return fmt.Errorf("unknown command %q (try help)", cmd)
}

func (c *console) key(ctx context.Context, cmd, code string) error {
	switch cmd {
	case "down":
		return c.keys.Key(ctx, input.Edge{Kind: input.KeyDown, Code: code})
	case "up":
		return c.keys.Key(ctx, input.Edge{Kind: input.KeyUp, Code: code})
	case "repeat":
		return c.keys.Key(ctx, input.Edge{Kind: input.KeyDown, Code: code, Repeat: true})
	}
	if err := c.keys.Key(ctx, input.Edge{Kind: input.KeyDown, Code: code}); err != nil {
		return err
	}
	return c.keys.Key(ctx, input.Edge{Kind: input.KeyUp, Code: code})
}

func (c *console) snap(args []string) error {
	if c.frames == nil {
		return errors.New("rendering disabled")
	}
	var path string
	if len(args) > 0 {
		path = args[0]
	} else {
		c.snapSeq++
		path = filepath.Join(c.snapDir, fmt.Sprintf("duel-%03d.png", c.snapSeq))
	}
	if err := c.frames.SavePNG(path); err != nil {
		return err
	}
	c.printf("📸 %s\n", path)
	return nil
}

func (c *console) printState(s game.Snapshot) {
	c.printf("tick %d (%.2fs)\n", s.Tick, s.SimTime)
	for _, p := range s.Players {
		state := "alive"
		if !p.Alive {
			state = "down"
		}
		c.printf("  %s %-5s at (%.0f, %.0f) %s", p.ID, state, p.X, p.Y, p.Phase)
		if p.Phase == game.Charging {
			c.printf(" %.0f%%", p.ChargeRatio*100)
			if p.Overcharged {
				c.printf(" OVERCHARGED")
			}
		}
		c.printf("\n")
	}
	c.printf("  shots in flight: %d\n", len(s.Shots))
	if s.Winner.Valid() {
		c.printf("  winner: %s (%s)\n", s.Winner, s.Cause)
	}
}

func (c *console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// consoleUI prints status changes. Returning to the menu ends the program.
type consoleUI struct {
	c    *console
	menu func(reason string)
}

func (u consoleUI) MatchStarted(mode peer.Mode) {
	u.c.printf("🎮 %s match started\n", mode)
}

func (u consoleUI) MatchEnded(winner game.PlayerID, cause game.RoundCause) {
	u.c.printf("🏁 %s wins (%s)\n", winner, cause)
}

func (u consoleUI) Status(text string) {
	u.c.printf("» %s\n", text)
}

func (u consoleUI) ReturnedToMenu(reason string) {
	u.c.printf("↩ %s\n", reason)
	if u.menu != nil {
		u.menu(reason)
	}
}
