// Package admin implements mfmcctl, the record-creation surface for
// operators: devices and their credentials, audio resources, and appending
// PLAY/STOP/PING commands to the command log.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"mfmc/core-go/internal/auth"
	"mfmc/core-go/internal/store"
)

// Store is what mfmcctl writes through.
type Store interface {
	store.Admin
	store.CommandLog
}

// CLI binds the command tree to a store. Output goes to Out.
type CLI struct {
	Store  Store
	Hasher *auth.Hasher
	Out    io.Writer
}

// Run executes one mfmcctl invocation.
func (c *CLI) Run(ctx context.Context, args []string) error {
	return c.Root(ctx).Execute(args)
}

// Root builds the command tree.
func (c *CLI) Root(ctx context.Context) *Command {
	return &Command{
		Name:    "mfmcctl",
		Summary: "Manage devices, audio resources and broadcast commands.",
		Subcommands: []*Command{
			{
				Name:    "device",
				Summary: "Manage playback devices",
				Subcommands: []*Command{
					c.deviceAdd(ctx),
					c.deviceList(ctx),
					c.deviceDeactivate(ctx),
					c.devicePasswd(ctx),
				},
			},
			{
				Name:    "audio",
				Summary: "Manage audio resources",
				Subcommands: []*Command{
					c.audioAdd(ctx),
					c.audioList(ctx),
				},
			},
			c.play(ctx),
			c.stop(ctx),
			c.ping(ctx),
			c.logs(ctx),
		},
	}
}

func (c *CLI) deviceAdd(ctx context.Context) *Command {
	var username, name string
	return &Command{
		Name:    "add",
		Summary: "Create a device and print its generated password",
		Usage:   "--username U [--name N]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("device add", pflag.ContinueOnError)
			fs.StringVar(&username, "username", "", "login name the device authenticates with")
			fs.StringVar(&name, "name", "", "display name")
			return fs
		},
		Run: func(args []string) error {
			if username == "" {
				return errors.New("--username is required")
			}
			password, hash, err := c.newPassword()
			if err != nil {
				return err
			}
			d, err := c.Store.CreateDevice(ctx, username, hash, name)
			if err != nil {
				return fmt.Errorf("create device: %w", err)
			}
			fmt.Fprintf(c.Out, "device %d created\nusername: %s\npassword: %s\n", d.ID, d.Username, password)
			return nil
		},
	}
}

func (c *CLI) deviceList(ctx context.Context) *Command {
	return &Command{
		Name:    "list",
		Summary: "List devices",
		Run: func(args []string) error {
			devices, err := c.Store.ListDevices(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.Out, 2, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSERNAME\tNAME\tACTIVE\tLAST SEEN")
			for _, d := range devices {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\n", d.ID, d.Username, d.Name, d.Active, formatTime(d.LastSeenAt))
			}
			return tw.Flush()
		},
	}
}

func (c *CLI) deviceDeactivate(ctx context.Context) *Command {
	return &Command{
		Name:    "deactivate",
		Summary: "Stop a device from authenticating",
		Usage:   "ID",
		Run: func(args []string) error {
			id, err := oneID(args)
			if err != nil {
				return err
			}
			if err := c.Store.DeactivateDevice(ctx, id); err != nil {
				return fmt.Errorf("deactivate device %d: %w", id, err)
			}
			fmt.Fprintf(c.Out, "device %d deactivated\n", id)
			return nil
		},
	}
}

func (c *CLI) devicePasswd(ctx context.Context) *Command {
	return &Command{
		Name:    "passwd",
		Summary: "Regenerate a device password",
		Usage:   "ID",
		Run: func(args []string) error {
			id, err := oneID(args)
			if err != nil {
				return err
			}
			password, hash, err := c.newPassword()
			if err != nil {
				return err
			}
			if err := c.Store.SetDevicePassword(ctx, id, hash); err != nil {
				return fmt.Errorf("set password for device %d: %w", id, err)
			}
			fmt.Fprintf(c.Out, "device %d password: %s\n", id, password)
			return nil
		},
	}
}

func (c *CLI) audioAdd(ctx context.Context) *Command {
	var name, description string
	return &Command{
		Name:    "add",
		Summary: "Upload a WAV file",
		Usage:   "[--name N] [--description D] FILE",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("audio add", pflag.ContinueOnError)
			fs.StringVar(&name, "name", "", "resource name (default: file name)")
			fs.StringVar(&description, "description", "", "free-form description")
			return fs
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("exactly one FILE is required")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(args[0])
			}
			res, err := c.Store.PutAudio(ctx, name, description, data)
			if err != nil {
				return fmt.Errorf("upload %s: %w", args[0], err)
			}
			fmt.Fprintf(c.Out, "audio %d stored (%s, %d bytes)\n", res.ID, res.Name, res.SizeBytes)
			return nil
		},
	}
}

func (c *CLI) audioList(ctx context.Context) *Command {
	return &Command{
		Name:    "list",
		Summary: "List audio resources",
		Run: func(args []string) error {
			resources, err := c.Store.ListAudio(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.Out, 2, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tBYTES\tUPLOADED\tDESCRIPTION")
			for _, r := range resources {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", r.ID, r.Name, r.SizeBytes, formatTime(&r.UploadedAt), r.Description)
			}
			return tw.Flush()
		},
	}
}

// scopeFlags are shared by play, stop and ping.
type scopeFlags struct {
	all     bool
	devices []int64
	by      string
}

func (s *scopeFlags) bind(fs *pflag.FlagSet, allowAll bool) {
	if allowAll {
		fs.BoolVar(&s.all, "all", false, "send to every active device")
	}
	fs.Int64SliceVar(&s.devices, "device", nil, "target device id (repeatable)")
	fs.StringVar(&s.by, "by", defaultOperator(), "operator name recorded in the broadcast log")
}

func (s *scopeFlags) scope() (store.Scope, error) {
	switch {
	case s.all && len(s.devices) > 0:
		return store.Scope{}, errors.New("--all and --device are mutually exclusive")
	case s.all:
		return store.AllDevicesScope(), nil
	case len(s.devices) > 0:
		return store.TargetScope(s.devices...), nil
	default:
		return store.Scope{}, errors.New("one of --all or --device is required")
	}
}

func (c *CLI) play(ctx context.Context) *Command {
	var sf scopeFlags
	var audioID int64
	return &Command{
		Name:    "play",
		Summary: "Tell devices to download and play an audio resource",
		Usage:   "--audio ID (--all | --device ID...)",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("play", pflag.ContinueOnError)
			fs.Int64Var(&audioID, "audio", 0, "audio resource id")
			sf.bind(fs, true)
			return fs
		},
		Run: func(args []string) error {
			if audioID <= 0 {
				return errors.New("--audio is required")
			}
			return c.broadcast(ctx, store.ActionPlay, &audioID, sf)
		},
	}
}

func (c *CLI) stop(ctx context.Context) *Command {
	var sf scopeFlags
	return &Command{
		Name:    "stop",
		Summary: "Tell devices to stop playback",
		Usage:   "(--all | --device ID...)",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("stop", pflag.ContinueOnError)
			sf.bind(fs, true)
			return fs
		},
		Run: func(args []string) error {
			return c.broadcast(ctx, store.ActionStop, nil, sf)
		},
	}
}

func (c *CLI) ping(ctx context.Context) *Command {
	var sf scopeFlags
	return &Command{
		Name:    "ping",
		Summary: "Send a connection check to devices",
		Usage:   "--device ID...",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("ping", pflag.ContinueOnError)
			sf.bind(fs, false)
			return fs
		},
		Run: func(args []string) error {
			return c.broadcast(ctx, store.ActionPing, nil, sf)
		},
	}
}

func (c *CLI) broadcast(ctx context.Context, action store.Action, resourceID *int64, sf scopeFlags) error {
	scope, err := sf.scope()
	if err != nil {
		return err
	}
	cmd, err := c.Store.AppendCommand(ctx, store.NewCommand{Action: action, ResourceID: resourceID, Scope: scope})
	if err != nil {
		return fmt.Errorf("append %s: %w", action, err)
	}
	if _, err := c.Store.RecordBroadcast(ctx, store.BroadcastLog{
		CommandID:  cmd.ID,
		Action:     cmd.Action,
		ResourceID: cmd.ResourceID,
		ExecutedBy: sf.by,
		Scope:      cmd.Scope,
	}); err != nil {
		return fmt.Errorf("command %d appended but broadcast log failed: %w", cmd.ID, err)
	}
	fmt.Fprintf(c.Out, "command %d %s %s\n", cmd.ID, cmd.Action, describeScope(cmd.Scope))
	return nil
}

func (c *CLI) logs(ctx context.Context) *Command {
	var deviceID int64
	var limit int
	return &Command{
		Name:    "logs",
		Summary: "Show recent device telemetry",
		Usage:   "--device ID [--limit N]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("logs", pflag.ContinueOnError)
			fs.Int64Var(&deviceID, "device", 0, "device id")
			fs.IntVar(&limit, "limit", 50, "maximum number of records")
			return fs
		},
		Run: func(args []string) error {
			if deviceID <= 0 {
				return errors.New("--device is required")
			}
			recs, err := c.Store.RecentTelemetry(ctx, deviceID, limit)
			if err != nil {
				return err
			}
			for _, r := range recs {
				fmt.Fprintf(c.Out, "%s %-8s %s\n", r.CreatedAt.UTC().Format(time.RFC3339), r.Level, r.Message)
			}
			return nil
		},
	}
}

func (c *CLI) newPassword() (password, hash string, err error) {
	password, err = auth.GeneratePassword(0)
	if err != nil {
		return "", "", err
	}
	hash, err = c.Hasher.Hash([]byte(password))
	if err != nil {
		return "", "", err
	}
	return password, hash, nil
}

func oneID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New("exactly one ID is required")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", args[0])
	}
	return id, nil
}

func describeScope(s store.Scope) string {
	if s.AllDevices {
		return "-> all devices"
	}
	return fmt.Sprintf("-> devices %v", s.Targets)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func defaultOperator() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "mfmcctl"
}
