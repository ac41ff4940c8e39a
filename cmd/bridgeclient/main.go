// Command bridgeclient is the client-side half of a bridge session:
// it mints a session GUID, launches the server executable with it,
// creates the control channel, runs the handshake, floods it with a
// configurable number of commands, then shuts down cleanly. It plays
// the role of d3d9_lss.cpp's InitServer plus a synthetic render loop,
// scoped to the transport substrate the same way the teacher's own
// flood_client test harness exercises a bare kaze.Channel.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/NVIDIAGameWorks/bridge-remix/bridge"
	"github.com/NVIDIAGameWorks/bridge-remix/commands"
	"github.com/NVIDIAGameWorks/bridge-remix/msgchannel"
	"github.com/NVIDIAGameWorks/bridge-remix/presentsem"
	"github.com/NVIDIAGameWorks/bridge-remix/procctl"
)

func main() {
	name := flag.String("name", "bridge", "shared-object name prefix")
	serverExe := flag.String("server", "", "path to the bridgeserver executable")
	count := flag.Int("count", 100000, "number of commands to send")
	payload := flag.Int("payload", 64, "bytes of payload data per command")
	cmdCap := flag.Uint("cmdqueue", uint(bridge.DefaultOptions().CmdQueueSize), "command queue capacity")
	dataCap := flag.Uint("dataqueue", uint(bridge.DefaultOptions().DataQueueSize), "data queue capacity in bytes")
	flag.Parse()

	if *serverExe == "" {
		fmt.Fprintln(os.Stderr, "bridgeclient: -server is required")
		os.Exit(2)
	}

	guid := bridge.NewSessionGUID()
	opts := bridge.DefaultOptions()

	chName := fmt.Sprintf("%s_%s_ctrl", *name, guid)
	ch, err := bridge.NewChannel(chName, uint32(*cmdCap), uint32(*dataCap))
	if err != nil {
		fmt.Fprintln(os.Stderr, "bridgeclient: create channel:", err)
		os.Exit(1)
	}
	defer ch.Close()
	ch.SetOptions(opts)

	var sem *presentsem.Semaphore
	if opts.PresentSemaphoreEnabled {
		sem, err = presentsem.New(fmt.Sprintf("%s_%s_present", *name, guid), uint32(opts.PresentSemaphoreMaxFrames), uint32(opts.PresentSemaphoreMaxFrames))
		if err != nil {
			fmt.Fprintln(os.Stderr, "bridgeclient: create present semaphore:", err)
			os.Exit(1)
		}
		defer sem.Close()
		ch.SetOverflowWait(func() error { return sem.Wait(int(opts.CommandTimeout.Milliseconds())) })
	}

	msgCh, err := msgchannel.NewChannel(fmt.Sprintf("%s_%s_msg", *name, guid), 64)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bridgeclient: create message channel:", err)
		os.Exit(1)
	}
	defer msgCh.Close()

	ctl := procctl.New()
	serverArgs := []string{
		fmt.Sprintf("-session=%s", guid),
		fmt.Sprintf("-version=%s", bridge.Version),
		fmt.Sprintf("-name=%s", *name),
		fmt.Sprintf("-cmdqueue=%d", *cmdCap),
		fmt.Sprintf("-dataqueue=%d", *dataCap),
	}
	if err := ctl.Launch(*serverExe, serverArgs...); err != nil {
		fmt.Fprintln(os.Stderr, "bridgeclient: launch server:", err)
		os.Exit(1)
	}
	ctl.OnExit(func(c *procctl.Controller, err error) {
		if err == nil {
			return
		}
		// Server crash during steady state (spec.md §8 scenario 6):
		// disable the bridge so no further commands are attempted,
		// surface a user-visible message, log what the channel was
		// doing right before the peer disappeared, then terminate —
		// there is no server left to render anything the client could
		// fall back to.
		ch.Disable()
		fmt.Fprintln(os.Stderr, "bridgeclient: runtime error: the render server exited unexpectedly:", err)
		for _, h := range ch.RecentHistory() {
			fmt.Fprintf(os.Stderr, "bridgeclient: recent command: id=%s handle=%d flags=%#x\n",
				commands.ID(h.CommandID), h.Handle, h.Flags)
		}
		os.Exit(1)
	})

	fmt.Printf("bridgeclient: session %s, server pid %d, starting handshake\n", guid, ctl.Pid())
	if err := bridge.ClientHandshake(ch, uint32(os.Getpid()), opts.StartupTimeout); err != nil {
		fmt.Fprintln(os.Stderr, "bridgeclient: handshake failed:", err)
		os.Exit(1)
	}
	fmt.Println("bridgeclient: handshake complete")

	if err := msgCh.Send(msgchannel.TypeFocusGained, 0, 0); err != nil {
		fmt.Fprintln(os.Stderr, "bridgeclient: focus message failed:", err)
	}

	data := make([]byte, *payload)
	start := time.Now()
	sent := 0
	const allocInterval = 100
	for i := 0; i < *count; i++ {
		id := commands.ID(1000 + i%50)
		switch {
		case i%allocInterval == 0:
			// Simulate a resource being created on the server's shadow
			// map every allocInterval commands...
			id = commands.SharedHeapAlloc
		case i%allocInterval == allocInterval/2 && i >= allocInterval/2:
			// ...and unlinked allocInterval/2 commands later.
			id = commands.UnlinkResource
		}
		handle := uint32(i)
		if id == commands.UnlinkResource {
			handle = uint32(i - allocInterval/2)
		}
		err := bridge.WithCommand(ch, id, handle, commands.FlagNone, func(cmd *bridge.Command) error {
			return cmd.SendData(data)
		})
		if err == bridge.ErrBusy {
			continue
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "bridgeclient: command failed:", err)
			break
		}
		sent++
		if !ch.Running() {
			fmt.Fprintln(os.Stderr, "bridgeclient: channel disabled, stopping early")
			break
		}
	}
	elapsed := time.Since(start)
	fmt.Printf("bridgeclient: sent %d/%d commands in %s (%.0f cmd/s)\n",
		sent, *count, elapsed, float64(sent)/elapsed.Seconds())

	if err := bridge.ClientShutdown(ch, opts.StartupTimeout, opts.InfiniteRetries); err != nil {
		fmt.Fprintln(os.Stderr, "bridgeclient: shutdown:", err)
	}

	if err := ctl.Shutdown(5 * time.Second); err != nil {
		fmt.Fprintln(os.Stderr, "bridgeclient: server shutdown:", err)
	}
	fmt.Println("bridgeclient: done")
}
