// Package sh is the interactive host console for pwmlink devices.
package sh

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/pwmlink/pkg/l0/link"
	"github.com/robotalks/pwmlink/pkg/l1/host"
	"github.com/robotalks/pwmlink/pkg/l1/telemetry"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell  *ishell.Shell
	Config *Config
	Conn   *Conn
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
	discoverTimeout   = 500 * time.Millisecond
)

var (
	evalOnly   bool
	outputJSON bool

	commands = []*ishell.Cmd{
		&DiscoverCmd,
		&ConnectCmd,
		&DisconnectCmd,
		&ResyncCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// ackOutput is the JSON form of a send result.
type ackOutput struct {
	Ack     string `json:"ack"`
	Error   string `json:"error,omitempty"`
	Command struct {
		Positions []int `json:"positions"`
		Switches  byte  `json:"switches"`
	} `json:"command"`
}

// PrintResult prints the result of a send.
func PrintResult(c *ishell.Context, cmd link.Command, ack link.Ack, err error) error {
	if ShellFrom(c).OutputJSON {
		var out ackOutput
		if ack != 0 {
			out.Ack = ack.String()
		}
		if err != nil {
			out.Error = err.Error()
		}
		for _, pos := range cmd.Positions {
			out.Command.Positions = append(out.Command.Positions, int(pos))
		}
		out.Command.Switches = cmd.Switches
		data, jsonErr := json.Marshal(&out)
		if jsonErr != nil {
			c.Err(jsonErr)
			return jsonErr
		}
		c.Println(string(data))
		return err
	}
	if err != nil {
		var ackErr *host.AckError
		if errors.As(err, &ackErr) && ackErr.NeedsResync() {
			err = fmt.Errorf("%v, escape sequence sent", err)
		} else if errors.Is(err, host.ErrNoAck) {
			err = fmt.Errorf("%v, device may be in fail-safe, run resync", err)
		}
		c.Err(err)
		return err
	}
	c.Println("OK")
	return nil
}

// Update changes the current command and sends it.
func Update(c *ishell.Context, fn func(*link.Command)) error {
	conn := ShellFrom(c).Conn
	if conn == nil {
		err := fmt.Errorf("not connected")
		c.Err(err)
		return err
	}
	ack, err := conn.Update(fn)
	return PrintResult(c, conn.Command(), ack, err)
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Discover lists devices publishing telemetry.
func (s *Shell) Discover() ([]*telemetry.Meta, error) {
	mon, err := telemetry.NewMonitor(s.Config.MQTTURL)
	if err != nil {
		return nil, err
	}
	if err := mon.Connect(); err != nil {
		return nil, err
	}
	defer mon.Close()
	return mon.Discover(context.TODO(), discoverTimeout)
}

// Connect opens the device stream at url.
func (s *Shell) Connect(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := Dial(ctx, url, s.Config)
	if err != nil {
		return err
	}
	s.Disconnect()
	s.Conn = conn
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", url))
	return nil
}

// Disconnect closes current connection.
func (s *Shell) Disconnect() {
	if s.Conn != nil {
		s.Conn.Close()
		s.Conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && s.Config.Transport != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.Transport)
		}
		if err := s.Connect(s.Config.Transport); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.Transport, err)
		}
		defer s.Disconnect()
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// DiscoverCmd lists devices from telemetry.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			metas, err := s.Discover()
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if metas == nil {
					metas = []*telemetry.Meta{}
				}
				out, err := json.Marshal(metas)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(string(out))
				return
			}
			if len(metas) == 0 {
				c.Println("No devices found")
				return
			}
			for _, meta := range metas {
				c.Printf("%s: %s (escape %s)\n", meta.ID, meta.Transport, meta.EscapeMode)
			}
		},
	}

	// ConnectCmd connects a device.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "URL",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			url := s.Config.Transport
			if len(c.Args) > 0 {
				url = c.Args[0]
			}
			if url == "" {
				c.Err(fmt.Errorf("URL required"))
				return
			}
			if err := s.Connect(url); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current device.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// ResyncCmd sends the escape sequence.
	ResyncCmd = ishell.Cmd{
		Name:    "resync",
		Aliases: []string{"esc"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			if err := ShellFrom(c).Conn.Resync(); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(NewConfig()).WithAutoConnect(true).Run(flag.Args()...)
}
