// Kioskd is an agent of Bench that runs on the shop-floor kiosk inside the
// makerspace LAN. It keeps a local copy of today's schedule so the kiosk
// stays useful during server outages, and buffers check-in scans until they
// can be reported back.
package main

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/TheLab-ms/bench/modules/api"
	"github.com/caarlos0/env/v11"
)

type Config struct {
	BenchURL   string `env:",required"`
	BenchToken string `env:",required"`
	StateDir   string `env:",required" envDefault:"./state"`
}

func main() {
	conf, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "KIOSKD_", UseFieldNameByDefault: true})
	if err != nil {
		panic(err)
	}
	client := api.NewKioskClient(conf.BenchURL, conf.BenchToken, conf.StateDir)

	// Flush buffered scan events to the server periodically
	go func() {
		for {
			jitterSleep(time.Second / 2)
			err = client.FlushEvents()
			if err != nil {
				slog.Error("failed to flush events to server", "error", err)
				continue
			}
		}
	}()

	var lastRevision int64
	for {
		jitterSleep(time.Second)

		err := client.WarmCache()
		if err != nil {
			slog.Error("failed to refresh schedule from server", "error", err)
			continue
		}

		sched := client.GetSchedule()
		if sched == nil || sched.Revision == lastRevision {
			continue // nothing has changed
		}
		slog.Info("got schedule from server", "revision", sched.Revision, "lastRevision", lastRevision, "entries", len(sched.Entries))
		lastRevision = sched.Revision
	}
}

func jitterSleep(dur time.Duration) {
	time.Sleep(dur + time.Duration(float64(dur)*0.2*(rand.Float64()-0.5)))
}
