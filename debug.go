package main

import (
	"fmt"
	"time"

	"github.com/gosuri/uilive"

	"github.com/banshee-data/orientd/internal/config"
	"github.com/banshee-data/orientd/internal/fsutil"
	"github.com/banshee-data/orientd/internal/iio"
	"github.com/banshee-data/orientd/internal/orient"
)

// runDebug prints a live readout of the sensors and the decisions the
// engine would take, without touching the X session. Ctrl-C to stop.
func runDebug(reader *iio.Reader, cfg *config.Config) error {
	writer := uilive.New()
	writer.Start()
	defer writer.Stop()

	threshold := cfg.GetGravityThreshold()
	mode := orient.Laptop
	orientation := orient.Normal

	for {
		time.Sleep(cfg.GetPollInterval())

		reading, err := reader.Read()
		if err != nil {
			return err
		}

		lidOpen := iio.LidOpen(fsutil.OSFileSystem{}, cfg.GetLidStatePath())
		mode = orient.ResolveMode(nil, reading.InclX, reading.InclY,
			func() bool { return lidOpen }, mode)
		if mode == orient.Tablet {
			orientation = orient.Classify(reading.AccelX, reading.AccelY, orientation, threshold)
		} else {
			orientation = orient.Normal
		}

		fmt.Fprintf(writer, `Accel:       x=%7.2f y=%7.2f
Incl:        x=%7.2f y=%7.2f z=%7.2f
Lid open:    %t
Faults:      %d

Mode:        %s
Orientation: %s
`, reading.AccelX, reading.AccelY, reading.InclX, reading.InclY, reading.InclZ,
			lidOpen, reader.Faults(), mode, orientation)
	}
}
