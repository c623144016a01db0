// Command headtrack drives a NaturalPoint tracking camera: it opens the
// device, runs the init handshake, keeps the IR illumination refreshed, and
// streams decoded frames to the HTTP API, the frame store, and the raw
// capture log.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/headtrack/internal/api"
	"github.com/banshee-data/headtrack/internal/config"
	"github.com/banshee-data/headtrack/internal/framedb"
	"github.com/banshee-data/headtrack/internal/monitoring"
	"github.com/banshee-data/headtrack/internal/rawlog"
	"github.com/banshee-data/headtrack/internal/track"
	"github.com/banshee-data/headtrack/internal/trackir"
	"github.com/banshee-data/headtrack/internal/usbmux"
)

var (
	devMode      = flag.Bool("dev", false, "Run against a replayed capture instead of real hardware")
	replayPath   = flag.String("replay", "", "Raw capture log to replay in dev mode (synthetic frames if empty)")
	serialPath   = flag.String("serial", "", "Use a USB-serial capture bridge at this path instead of libusb")
	baudRate     = flag.Int("baud", usbmux.DefaultBaudRate, "Baud rate for the serial bridge")
	listen       = flag.String("listen", ":8080", "HTTP listen address (empty disables the API)")
	dbPath       = flag.String("db", "", "SQLite frame store path (empty disables recording)")
	recordPath   = flag.String("record", "", "Raw capture log output path (empty disables)")
	variantsPath = flag.String("variants", "", "Variants TOML overriding the embedded command tables")
	vendorID     = flag.Uint("vid", 0x1784, "USB vendor ID")
	productID    = flag.Uint("pid", 0x0030, "USB product ID")
	ledRefresh   = flag.Duration("led-refresh", 5*time.Second, "Interval for refreshing the illumination state (0 disables)")
	seekSync     = flag.Bool("seek-sync", false, "Use the seek-framing synchronizer policy")
)

func main() {
	flag.Parse()

	variants := config.DefaultVariants()
	if *variantsPath != "" {
		var err error
		variants, err = config.LoadVariants(*variantsPath)
		if err != nil {
			log.Fatalf("failed to load variants: %v", err)
		}
	}

	opener, err := chooseOpener()
	if err != nil {
		log.Fatalf("failed to set up transport: %v", err)
	}

	cfg := trackir.DefaultSessionConfig()
	if *seekSync {
		cfg.Sync.Policy = trackir.SeekFraming
	}

	sess, err := trackir.Open(uint16(*vendorID), uint16(*productID), variants, opener, cfg)
	if err != nil {
		log.Fatalf("failed to open device %04x:%04x: %v", *vendorID, *productID, err)
	}
	defer sess.Close()

	if err := sess.Init(); err != nil {
		log.Fatalf("device init failed: %v", err)
	}
	if err := sess.SetIllumination(true); err != nil {
		log.Fatalf("failed to enable illumination: %v", err)
	}
	monitoring.Logf("device %s initialized", sess.Variant().Name)

	var db *framedb.DB
	if *dbPath != "" {
		db, err = framedb.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open frame store: %v", err)
		}
		defer db.Close()
		if _, err := db.StartSession(uint16(*vendorID), uint16(*productID), ""); err != nil {
			log.Fatalf("failed to start capture session: %v", err)
		}
		defer db.EndSession()
	}

	var recorder *rawlog.Writer
	if *recordPath != "" {
		recorder, err = rawlog.NewWriter(*recordPath)
		if err != nil {
			log.Fatalf("failed to open raw capture log: %v", err)
		}
		defer recorder.Close()
	}

	hub := api.NewHub()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	if *listen != "" {
		srv := &http.Server{
			Addr:              *listen,
			Handler:           api.NewServer(sess, db, hub).ServeMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			monitoring.Logf("serving API on %s", *listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runReader(ctx, sess, hub, db, recorder); err != nil {
			log.Printf("reader stopped: %v", err)
			stop()
		}
	}()

	wg.Wait()
	monitoring.Logf("shut down after %d frames", sess.FrameCount())
}

// runReader is the single consumer of the device: it pulls the freshest
// frame, fans it out, and keeps the illumination alive.
func runReader(ctx context.Context, sess *trackir.Session, hub *api.Hub, db *framedb.DB, recorder *rawlog.Writer) error {
	smoother := track.NewSmoother(0.3)
	lastLED := time.Now()
	var dataFrames uint64

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		f, err := sess.ReadFrame()
		if err != nil {
			if errors.Is(err, trackir.ErrSyncLost) {
				monitoring.Logf("frame sync lost, restarting search")
				continue
			}
			return err
		}

		if f != nil {
			if recorder != nil {
				if err := recorder.Record(f.Raw()); err != nil {
					monitoring.Logf("raw capture write failed: %v", err)
				}
			}
			if db != nil {
				if err := db.RecordFrame(f); err != nil {
					monitoring.Logf("frame store write failed: %v", err)
				}
			}
			hub.Publish(api.Summarize(f))

			if df, ok := f.(*trackir.DataFrame); ok {
				x, y := smoother.Update(track.FrameStats(df.Pixels))
				dataFrames++
				if dataFrames%100 == 0 {
					monitoring.Logf("frames=%d blobs=%d head=(%.1f, %.1f)",
						sess.FrameCount(), len(df.Pixels), x, y)
				}
			}
		}

		if *ledRefresh > 0 && time.Since(lastLED) >= *ledRefresh {
			if err := sess.SetIllumination(true); err != nil {
				return err
			}
			lastLED = time.Now()
		}
	}
}

// chooseOpener picks the transport backend from the flags: replayed capture
// in dev mode, a serial bridge when -serial is set, libusb otherwise.
func chooseOpener() (usbmux.TransportOpener, error) {
	if *devMode {
		records, err := replayRecords()
		if err != nil {
			return nil, err
		}
		return func(vendorID, productID uint16) (usbmux.Transport, error) {
			return usbmux.NewReplayTransport(records, 10*time.Millisecond, true), nil
		}, nil
	}

	if *serialPath != "" {
		return func(vendorID, productID uint16) (usbmux.Transport, error) {
			return usbmux.OpenSerial(*serialPath, *baudRate)
		}, nil
	}

	return usbmux.OpenUSB, nil
}

func replayRecords() ([][]byte, error) {
	if *replayPath == "" {
		return syntheticRecords(600), nil
	}

	records, err := rawlog.ReadAll(*replayPath)
	if err != nil {
		return nil, err
	}
	bufs := make([][]byte, len(records))
	for i, rec := range records {
		bufs[i] = rec.Raw
	}
	monitoring.Logf("replaying %d captured buffers from %s", len(bufs), *replayPath)
	return bufs, nil
}

// syntheticRecords fabricates a single blob orbiting the sensor center so
// dev mode has something to decode without a capture file.
func syntheticRecords(n int) [][]byte {
	recs := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		angle := float64(i) / 10
		x := byte(128 + 64*math.Sin(angle))
		y := byte(128 + 64*math.Cos(angle))
		recs = append(recs, []byte{0x06, trackir.TypeData, byte(i % 4), x, y, 0xFF})
	}
	return recs
}
