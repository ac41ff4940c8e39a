// Command bridgeserver is the server-side half of a bridge session: it
// attaches to the control channel the client already created, runs
// the handshake, and then pumps commands off the channel until the
// client requests shutdown. It plays the same role as the original
// render server's main(), stripped of the D3D9 dispatch table the
// external Dispatcher owns — this harness only proves the transport
// substrate moves bytes and tears itself down cleanly, the same scope
// the teacher's own flood_server test harness covers for a bare
// kaze.Channel.
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
	"github.com/NVIDIAGameWorks/bridge-remix/shadow"
)

func main() {
	name := flag.String("name", "bridge", "shared-object name prefix")
	session := flag.String("session", "", "session GUID, passed by the launching client")
	version := flag.String("version", bridge.Version, "expected client bridge version")
	cmdCap := flag.Uint("cmdqueue", uint(bridge.DefaultOptions().CmdQueueSize), "command queue capacity")
	dataCap := flag.Uint("dataqueue", uint(bridge.DefaultOptions().DataQueueSize), "data queue capacity in bytes")
	flag.Parse()

	if *session == "" {
		fmt.Fprintln(os.Stderr, "bridgeserver: -session is required")
		os.Exit(2)
	}
	guid, err := bridge.ParseSessionGUID(*session)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bridgeserver: invalid session GUID:", err)
		os.Exit(2)
	}
	if *version != bridge.Version {
		fmt.Fprintf(os.Stderr, "bridgeserver: version mismatch: client wants %s, server is %s\n", *version, bridge.Version)
		os.Exit(2)
	}

	chName := fmt.Sprintf("%s_%s_ctrl", *name, guid)
	ch, err := bridge.OpenChannel(chName, uint32(*cmdCap), uint32(*dataCap))
	if err != nil {
		fmt.Fprintln(os.Stderr, "bridgeserver: open channel:", err)
		os.Exit(1)
	}
	defer ch.Close()

	opts := bridge.DefaultOptions()
	ch.SetOptions(opts)

	var sem *presentsem.Semaphore
	if opts.PresentSemaphoreEnabled {
		sem, err = presentsem.Open(fmt.Sprintf("%s_%s_present", *name, guid))
		if err != nil {
			fmt.Fprintln(os.Stderr, "bridgeserver: open present semaphore:", err)
			os.Exit(1)
		}
		defer sem.Close()
	}

	msgCh, err := msgchannel.OpenChannel(fmt.Sprintf("%s_%s_msg", *name, guid), 64)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bridgeserver: open message channel:", err)
		os.Exit(1)
	}
	defer msgCh.Close()
	msgCh.RegisterHandler(msgchannel.TypeFocusLost, func(p1, p2 uint64) {
		fmt.Println("bridgeserver: client lost focus")
	})
	msgCh.RegisterHandler(msgchannel.TypeFocusGained, func(p1, p2 uint64) {
		fmt.Println("bridgeserver: client regained focus")
	})

	fmt.Printf("bridgeserver: session %s starting handshake\n", guid)
	clientHandle, err := bridge.ServerHandshake(ch, uint32(os.Getpid()), opts.StartupTimeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bridgeserver: handshake failed:", err)
		os.Exit(1)
	}
	fmt.Printf("bridgeserver: handshake complete, client handle=%d\n", clientHandle)

	stopMsgPump := make(chan struct{})
	go func() {
		for {
			select {
			case <-stopMsgPump:
				return
			default:
				_ = msgCh.Dispatch(100)
			}
		}
	}()
	defer close(stopMsgPump)

	// sm binds the client's shared-heap allocation ids to a live server-
	// side tracking entry, the same Track-on-create/Erase-on-Unlink
	// lifecycle the real D3D9 resource wrappers drive (out of scope
	// here); this harness exercises it directly off SharedHeap_Alloc
	// and UnlinkResource instead of a real dispatcher.
	sm := shadow.New()

	received := 0
	start := time.Now()
	terminated := false
loop:
	for {
		rc, err := ch.Receive(int(opts.CommandTimeout.Milliseconds()))
		if err != nil {
			if err == bridge.ErrTimeout {
				continue
			}
			fmt.Fprintln(os.Stderr, "bridgeserver: receive failed:", err)
			break
		}

		if rc.ID == commands.Terminate {
			terminated = true
			break loop
		}

		// Every other command carries exactly one data-queue token in
		// this harness, but this demo has no use for most payload
		// bytes themselves, so it fast-forwards straight to where the
		// next command's tokens begin instead of pulling and
		// discarding every token individually. Unconditional: the
		// data queue's overflow-avoidance sync needs the server's
		// read position kept current regardless of which command id
		// owns the bytes.
		if err := ch.SkipToDataOffset(rc.DataOffset, int(opts.CommandTimeout.Milliseconds())); err != nil {
			fmt.Fprintln(os.Stderr, "bridgeserver: skip to data offset failed:", err)
			break loop
		}
		ch.MarkServerDataPos(int64(ch.RecvDataPos()))

		switch rc.ID {
		case commands.SharedHeapAlloc:
			if err := sm.Track(rc.Handle, "heap-alloc", nil); err != nil {
				fmt.Fprintln(os.Stderr, "bridgeserver: duplicate SharedHeap_Alloc id:", err)
			}
		case commands.UnlinkResource:
			if _, ok := sm.Erase(rc.Handle); !ok {
				commandHistoryFatal(ch, sm, fmt.Sprintf("UnlinkResource for an id the server never tracked: %d", rc.Handle))
				break loop
			}
		default:
			received++
			if sem != nil {
				sem.Release()
			}
		}
	}

	elapsed := time.Since(start)
	fmt.Printf("bridgeserver: processed %d commands in %s\n", received, elapsed)

	if !terminated {
		fmt.Fprintln(os.Stderr, "bridgeserver: exiting without a clean Terminate")
		os.Exit(1)
	}
	if err := bridge.AckShutdown(ch); err != nil {
		fmt.Fprintln(os.Stderr, "bridgeserver: sending final Ack:", err)
		os.Exit(1)
	}
	fmt.Println("bridgeserver: clean shutdown")
}

// commandHistoryFatal handles a detected protocol violation the way
// spec.md §4.6/§7 category 3 describes: disable the channel so no
// further commands are attempted, then log the bridge's own recent
// command history alongside the shadow map's recently erased ids so a
// crash report can show what both sides thought was live immediately
// beforehand.
func commandHistoryFatal(ch *bridge.Channel, sm *shadow.Map, reason string) {
	fmt.Fprintln(os.Stderr, "bridgeserver: fatal protocol violation:", reason)
	ch.Disable()
	for _, h := range ch.RecentHistory() {
		fmt.Fprintf(os.Stderr, "bridgeserver: recent command: id=%s handle=%d flags=%#x\n",
			commands.ID(h.CommandID), h.Handle, h.Flags)
	}
	sm.DumpRecentHistory()
}
