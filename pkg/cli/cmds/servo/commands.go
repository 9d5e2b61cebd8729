// Package servo provides console commands driving channels and switches.
package servo

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/pwmlink/pkg/cli/sh"
	"github.com/robotalks/pwmlink/pkg/l0/link"
	"github.com/robotalks/pwmlink/pkg/l0/pwm"
)

// ParsePosition parses a position byte, 0-255.
func ParsePosition(s string) (byte, error) {
	val, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid POSITION %q", s)
	}
	return byte(val), nil
}

// ParseChannel parses a channel number 1-6.
func ParseChannel(s string) (int, error) {
	ch, err := strconv.Atoi(s)
	if err != nil || ch < 1 || ch > link.Positions {
		return 0, fmt.Errorf("invalid CHANNEL %q, expect 1-%d", s, link.Positions)
	}
	return ch, nil
}

// ParseSwitches parses a switch byte, either a number or letters of
// the outputs which are on, e.g. "a", "ab", "-" for none.
func ParseSwitches(s string) (byte, error) {
	if val, err := strconv.ParseUint(s, 0, 8); err == nil {
		return byte(val), nil
	}
	var bits byte
	for _, r := range strings.ToLower(s) {
		switch r {
		case 'a':
			bits |= pwm.SwitchA
		case 'b':
			bits |= pwm.SwitchB
		case '-':
		default:
			return 0, fmt.Errorf("invalid SWITCHES %q", s)
		}
	}
	return bits, nil
}

// ParseOnOff parses on/off.
func ParseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid STATE %q, expect on or off", s)
}

// ParseFrame parses hex bytes, which may be split into several args.
func ParseFrame(args []string) (link.Frame, error) {
	data, err := hex.DecodeString(strings.Join(args, ""))
	if err != nil {
		return link.Frame{}, fmt.Errorf("invalid hex: %v", err)
	}
	return link.FrameFrom(data)
}

// FormatCommand prints a command for display.
func FormatCommand(cmd link.Command) string {
	var sb strings.Builder
	for i, pos := range cmd.Positions {
		fmt.Fprintf(&sb, "ch%d=%d(%d) ", i+1, pos, pwm.Setpoint(pos))
	}
	fmt.Fprintf(&sb, "A=%v B=%v", cmd.Switches&pwm.SwitchA != 0, cmd.Switches&pwm.SwitchB != 0)
	return sb.String()
}

var (
	// SetCmd sends all positions.
	SetCmd = ishell.Cmd{
		Name:    "set",
		Aliases: []string{"s"},
		Help:    "P1 P2 P3 P4 P5 P6 [SWITCHES]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < link.Positions {
				c.Err(fmt.Errorf("%d positions required", link.Positions))
				return
			}
			var positions [link.Positions]byte
			for i := range positions {
				pos, err := ParsePosition(c.Args[i])
				if err != nil {
					c.Err(err)
					return
				}
				positions[i] = pos
			}
			switches := -1
			if len(c.Args) > link.Positions {
				bits, err := ParseSwitches(c.Args[link.Positions])
				if err != nil {
					c.Err(err)
					return
				}
				switches = int(bits)
			}
			sh.Update(c, func(cmd *link.Command) {
				cmd.Positions = positions
				if switches >= 0 {
					cmd.Switches = byte(switches)
				}
			})
		}),
	}

	// ChannelCmd changes one channel.
	ChannelCmd = ishell.Cmd{
		Name:    "channel",
		Aliases: []string{"ch"},
		Help:    "CHANNEL POSITION",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("CHANNEL and POSITION required"))
				return
			}
			ch, err := ParseChannel(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			pos, err := ParsePosition(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			sh.Update(c, func(cmd *link.Command) {
				cmd.Positions[ch-1] = pos
			})
		}),
	}

	// SwitchCmd changes one discrete output.
	SwitchCmd = ishell.Cmd{
		Name:    "switch",
		Aliases: []string{"sw"},
		Help:    "A|B on|off",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("OUTPUT and STATE required"))
				return
			}
			bit, err := ParseSwitches(c.Args[0])
			if err != nil || (bit != pwm.SwitchA && bit != pwm.SwitchB) {
				c.Err(fmt.Errorf("invalid OUTPUT %q, expect A or B", c.Args[0]))
				return
			}
			on, err := ParseOnOff(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			sh.Update(c, func(cmd *link.Command) {
				if on {
					cmd.Switches |= bit
				} else {
					cmd.Switches &^= bit
				}
			})
		}),
	}

	// NeutralCmd moves all channels to the neutral position.
	NeutralCmd = ishell.Cmd{
		Name:    "neutral",
		Aliases: []string{"n"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.Update(c, func(cmd *link.Command) {
				cmd.Positions = [link.Positions]byte{}
			})
		}),
	}

	// RawCmd sends a raw frame as is, for testing device error handling.
	RawCmd = ishell.Cmd{
		Name:    "raw",
		Aliases: []string{},
		Help:    "HEX (14 bytes)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			f, err := ParseFrame(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			conn := sh.ShellFrom(c).Conn
			ack, err := conn.Client.SendFrame(conn.Context(), f)
			sh.PrintResult(c, f.Command(), ack, err)
		}),
	}

	// StatusCmd prints the current command and last result.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			conn := sh.ShellFrom(c).Conn
			res := conn.LastResult()
			c.Println(FormatCommand(conn.Command()))
			switch {
			case res.Sent == 0:
				c.Println("nothing sent")
			case res.Err != nil:
				c.Printf("sent %d, last error: %v\n", res.Sent, res.Err)
			default:
				c.Printf("sent %d, last ack: %s\n", res.Sent, res.Ack)
			}
		}),
	}
)

func init() {
	sh.AddCmds(
		&SetCmd,
		&ChannelCmd,
		&SwitchCmd,
		&NeutralCmd,
		&RawCmd,
		&StatusCmd,
	)
}
