// Command rdcbench is a low-level diagnostic for the CAN bench bridge
// (link/canbench): it opens the bridge directly, logs every reassembled
// frame it hears, and optionally fires off one test payload, without
// bringing up a full rdc.Node. Useful for confirming the bench wiring
// (cabling, termination, arbitration id) before running rdcnode against
// it. Grounded the same way as the teacher's cmd/canopen_test
// (cmd/canopen_test/main.go): a minimal standalone exerciser for one
// transport, separate from the full node entry point.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/gocrankshaft/rdc/link/canbench"
)

func main() {
	iface := flag.StringP("iface", "i", "vcan0", "CAN bench interface")
	canID := flag.Uint32P("can-id", "I", 0x7de, "CAN arbitration id")
	payload := flag.StringP("send", "s", "", "if set, send this literal string once and exit")
	flag.Parse()

	logrus.SetLevel(logrus.DebugLevel)

	bridge, err := canbench.Open(*iface, *canID, func(raw []byte) {
		logrus.WithField("bytes", fmt.Sprintf("% x", raw)).Info("frame reassembled")
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %v: %v\n", *iface, err)
		os.Exit(1)
	}

	if *payload != "" {
		radio := canbench.NewRadio(bridge)
		result := radio.Send([]byte(*payload))
		logrus.WithField("result", result).Info("test payload sent")
		time.Sleep(200 * time.Millisecond)
		return
	}

	logrus.Infof("listening on %v, arbitration id 0x%x", *iface, *canID)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
