// Command acllinkctl is an interactive console for driving a link.Core in
// isolation, without a real HCI controller underneath. It's useful for
// exercising the state machine by hand: connect and disconnect a fake
// link, open channels, set link priority, and dump the pool state with
// snapshot. It has no command that queues data.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blang/semver"
	"github.com/fatih/color"
	"github.com/google/shlex"
	"github.com/urfave/cli"

	"github.com/rigado/l2cap"
	"github.com/rigado/l2cap/link"
)

var version = semver.MustParse("0.1.0")

func main() {
	core, err := link.NewCore(
		l2cap.OptMaxLinks(4),
		l2cap.OptMaxChannels(16),
		l2cap.OptACLBufferCount(4),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("init: %v", err))
		os.Exit(1)
	}

	sh := &shell{core: core}

	app := cli.NewApp()
	app.Name = "acllinkctl"
	app.Version = version.String()
	app.Usage = "drive an L2CAP ACL link management core interactively"
	app.Commands = sh.commands()
	app.Action = func(*cli.Context) error {
		sh.repl(app)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString(err.Error()))
		os.Exit(1)
	}
}

type shell struct {
	core *link.Core
}

func (sh *shell) repl(app *cli.App) {
	color.Cyan("acllinkctl %s, type 'help' for commands, 'quit' to exit", version.String())
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return
		}

		args, err := shlex.Split(line)
		if err != nil {
			color.Red("parse error: %v", err)
			continue
		}

		if err := app.Run(append([]string{app.Name}, args...)); err != nil {
			color.Red("%v", err)
		}
	}
}

func (sh *shell) commands() []cli.Command {
	return []cli.Command{
		{
			Name:      "connect",
			Usage:     "simulate an HCI connection complete for a peer",
			ArgsUsage: "<addr> <handle>",
			Action: func(c *cli.Context) error {
				addr, err := l2cap.ParseAddress(c.Args().Get(0))
				if err != nil {
					return err
				}
				handle, err := parseHandle(c.Args().Get(1))
				if err != nil {
					return err
				}
				sh.core.HandleConnectionComplete(l2cap.HCISuccess, handle, addr)
				color.Green("connected %s on handle 0x%04x", addr, handle)
				return nil
			},
		},
		{
			Name:      "disconnect",
			Usage:     "simulate an HCI disconnection complete",
			ArgsUsage: "<handle> [reason]",
			Action: func(c *cli.Context) error {
				handle, err := parseHandle(c.Args().Get(0))
				if err != nil {
					return err
				}
				reason := l2cap.HCIPeerUser
				if c.NArg() > 1 {
					n, err := strconv.ParseUint(c.Args().Get(1), 0, 8)
					if err != nil {
						return err
					}
					reason = l2cap.HCIStatus(n)
				}
				if sh.core.HandleDisconnectionComplete(handle, reason) {
					color.Yellow("disconnected handle 0x%04x", handle)
				} else {
					color.Red("unknown handle 0x%04x", handle)
				}
				return nil
			},
		},
		{
			Name:      "open",
			Usage:     "open a dynamic channel on a connected peer",
			ArgsUsage: "<addr> <priority>",
			Action: func(c *cli.Context) error {
				addr, err := l2cap.ParseAddress(c.Args().Get(0))
				if err != nil {
					return err
				}
				pri := 0
				if c.NArg() > 1 {
					pri, err = strconv.Atoi(c.Args().Get(1))
					if err != nil {
						return err
					}
				}
				cid, err := sh.core.OpenChannel(link.ChannelParams{
					Peer:      addr,
					Transport: l2cap.TransportBREDR,
					Priority:  pri,
					MPS:       672,
				})
				if err != nil {
					return err
				}
				color.Green("opened channel 0x%04x", cid)
				return nil
			},
		},
		{
			Name:      "priority",
			Usage:     "set a link's ACL priority (0=normal, 1=high)",
			ArgsUsage: "<addr> <priority>",
			Action: func(c *cli.Context) error {
				addr, err := l2cap.ParseAddress(c.Args().Get(0))
				if err != nil {
					return err
				}
				n, err := strconv.Atoi(c.Args().Get(1))
				if err != nil {
					return err
				}
				if err := sh.core.SetLinkPriority(addr, l2cap.TransportBREDR, l2cap.Priority(n)); err != nil {
					return err
				}
				color.Green("set priority of %s to %s", addr, l2cap.Priority(n))
				return nil
			},
		},
		{
			Name:      "snapshot",
			Usage:     "dump the current LCB/CCB pool state as JSON",
			ArgsUsage: "",
			Action: func(*cli.Context) error {
				out, err := sh.core.Snapshot()
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			},
		},
		{
			Name:      "version",
			Usage:     "print the tool version",
			ArgsUsage: "",
			Action: func(*cli.Context) error {
				fmt.Println(version.String())
				return nil
			},
		},
	}
}

func parseHandle(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid handle %q: %w", s, err)
	}
	return uint16(n), nil
}
