// Command rdcsim spins up a small network of nodes sharing one
// link/virtual medium and drives a short scripted exchange between them,
// for exercising and demonstrating the contention and delivery behavior
// without any hardware. Grounded on the teacher's examples/master
// (examples/master/main.go): a small standalone program wiring up a
// network and issuing a few calls against it, generalized from one
// CANopen master against one remote node to N peer nodes on a shared
// medium.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/gocrankshaft/rdc"
	"github.com/gocrankshaft/rdc/config"
	"github.com/gocrankshaft/rdc/link/virtual"
)

func main() {
	count := flag.IntP("nodes", "n", 4, "number of simulated nodes sharing the medium")
	duration := flag.DurationP("duration", "d", 3*time.Second, "how long to run the simulation")
	verbose := flag.BoolP("verbose", "v", false, "debug logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg := config.Default()
	if *count > cfg.TotalSlots {
		fmt.Printf("refusing to run %d nodes against %d slots; lower --nodes or raise [slots] total\n", *count, cfg.TotalSlots)
		return
	}

	medium := virtual.NewMedium(cfg.ContentionWindow())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodes := make([]*rdc.Node, *count)
	for i := 0; i < *count; i++ {
		i := i
		var self rdc.Address
		self[rdc.AddressLen-1] = byte(i + 1)

		buf := &virtual.PacketBuffer{}
		framer := &virtual.Framer{Buf: buf, MaxHeader: cfg.MaxStrobeSize}

		radio := virtual.NewRadio(medium, func(raw []byte) {
			nodes[i].PacketInput(raw)
		})

		node, err := rdc.Init(ctx, cfg, self, rdc.Deps{
			Framer: framer,
			Buffer: buf,
			Radio:  radio,
			RTimer: virtual.NewWallRTimer(),
			Wdog:   &virtual.Watchdog{},
			PRNG:   virtual.NewPRNG(),
		}, func(f rdc.Frame) {
			logrus.WithFields(logrus.Fields{
				"node": i + 1, "from": f.Sender, "seq": f.Seq,
			}).Info("delivered")
		})
		if err != nil {
			panic(err)
		}
		nodes[i] = node
	}
	defer func() {
		for _, n := range nodes {
			n.Close()
		}
	}()

	if len(nodes) >= 2 {
		nodes[0].SendPacket(rdc.NullAddress, []byte("hello network"), func(result rdc.TxResult, user any, attempts int) {
			logrus.WithField("result", result).Info("broadcast send completed")
		}, nil)
	}

	time.Sleep(*duration)

	for i, n := range nodes {
		s := n.Stats()
		fmt.Printf("node %d: sent=%d collisions=%d noack=%d delivered=%d drops=%d\n",
			i+1, s.Sent, s.Collisions, s.NoAcks, s.Delivered, s.QueueDrops)
	}
}
