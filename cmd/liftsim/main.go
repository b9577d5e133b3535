package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/liftsim/internal/config"
	"github.com/san-kum/liftsim/internal/params"
	"github.com/san-kum/liftsim/internal/sim"
	"github.com/san-kum/liftsim/internal/storage"
	"github.com/san-kum/liftsim/internal/tank"
	"github.com/san-kum/liftsim/internal/transport"
	"github.com/san-kum/liftsim/internal/viz"
)

var (
	dataDir    string
	configFile string
	broker     string
	capacity   float64
	pumpRate   float64
	outflow    float64
	tanks      int
	pumpOn     bool
	initVolume float64
	stepSec    float64
	record     bool
)

const connectTimeout = 10 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "liftsim",
		Short: "dual-tank lift station simulator driven over MQTT",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "data directory")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the simulation loop",
		RunE:  runSimulation,
	}
	addSimFlags(runCmd)

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run the simulation with a live dashboard",
		RunE:  runLive,
	}
	addSimFlags(liveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded sessions",
		RunE:  listSessions,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [session_id]",
		Short: "plot a recorded session",
		Args:  cobra.ExactArgs(1),
		RunE:  plotSession,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [session_id]",
		Short: "export session ticks to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [session_id]",
		Short: "export session data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, plotCmd, exportCSVCmd, exportJSONCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSimFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&broker, "broker", config.DefaultBroker, "mqtt broker url")
	cmd.Flags().Float64Var(&capacity, "capacity", tank.DefaultCapacity, "total capacity (L)")
	cmd.Flags().Float64Var(&pumpRate, "pump-rate", tank.DefaultPumpRate, "pump max rate (L/min)")
	cmd.Flags().Float64Var(&outflow, "outflow", config.DefaultOutflow, "initial fab outflow rate (L/min)")
	cmd.Flags().IntVar(&tanks, "tanks", config.DefaultActiveTanks, "initial active tank count (1 or 2)")
	cmd.Flags().BoolVar(&pumpOn, "pump", true, "initial pump status")
	cmd.Flags().Float64Var(&initVolume, "volume", 0, "initial volume (L)")
	cmd.Flags().Float64Var(&stepSec, "step", config.DefaultStepSeconds, "tick period (seconds)")
	cmd.Flags().BoolVar(&record, "record", false, "record the session")
}

// buildConfig layers defaults, the optional config file, and CLI flags,
// flags winning when explicitly set.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("broker") {
		cfg.Broker = broker
	}
	if cmd.Flags().Changed("capacity") {
		cfg.Capacity = capacity
	}
	if cmd.Flags().Changed("pump-rate") {
		cfg.PumpRate = pumpRate
	}
	if cmd.Flags().Changed("outflow") {
		cfg.Initial.Outflow = outflow
	}
	if cmd.Flags().Changed("tanks") {
		cfg.Initial.ActiveTanks = tanks
	}
	if cmd.Flags().Changed("pump") {
		cfg.Initial.PumpOn = pumpOn
	}
	if cmd.Flags().Changed("volume") {
		cfg.InitialVolume = initVolume
	}
	if cmd.Flags().Changed("step") {
		cfg.StepSeconds = stepSec
	}
	if cmd.Flags().Changed("data") {
		cfg.DataDir = dataDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type simulation struct {
	cfg      *config.Config
	client   *transport.Client
	ctrl     *sim.Controller
	recorder *storage.Recorder
}

// setup wires store, transport, and controller. Broker connection and
// subscription failures are fatal here; everything after startup is not.
func setup(cmd *cobra.Command) (*simulation, error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}

	tk, err := tank.New(cfg.Capacity, cfg.PumpRate)
	if err != nil {
		return nil, err
	}

	store, err := params.NewStore(cfg.Initial.Outflow, cfg.Initial.ActiveTanks, cfg.Initial.PumpOn)
	if err != nil {
		return nil, err
	}

	clientID := fmt.Sprintf("liftsim-%d", time.Now().UnixNano())
	client := transport.New(cfg.Broker, clientID, cfg.TransportTopics())
	client.Logf = logf
	if err := client.Connect(connectTimeout); err != nil {
		return nil, err
	}
	if err := client.SubscribeControls(store); err != nil {
		client.Close()
		return nil, err
	}

	ctrl, err := sim.New(tk, store, sim.Config{
		Step:          cfg.Step(),
		StepMinutes:   cfg.StepMinutes,
		InitialVolume: cfg.InitialVolume,
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	ctrl.Logf = logf
	ctrl.AddEmitter(client)

	s := &simulation{cfg: cfg, client: client, ctrl: ctrl}

	if record {
		st := storage.New(cfg.DataDir)
		if err := st.Init(); err != nil {
			client.Close()
			return nil, err
		}
		s.recorder = st.NewRecorder(cfg.Capacity, cfg.PumpRate, cfg.StepMinutes)
		ctrl.AddEmitter(s.recorder)
	}

	return s, nil
}

func (s *simulation) finish(result *sim.Result) error {
	s.client.Close()

	fmt.Printf("\nticks: %d  elapsed: %.2f min  volume: %.2f L\n",
		result.Ticks, result.ElapsedMinutes, result.FinalVolume)
	if result.Overflows > 0 || result.Underflows > 0 {
		fmt.Printf("clamps: %d overflow, %d underflow\n", result.Overflows, result.Underflows)
	}
	if result.Overruns > 0 {
		fmt.Printf("tick overruns: %d\n", result.Overruns)
	}
	if result.EmitErrors > 0 {
		fmt.Printf("failed emissions: %d\n", result.EmitErrors)
	}

	if s.recorder != nil {
		id, err := s.recorder.Close()
		if err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		fmt.Printf("session id: %s\n", id)
	}
	return nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	s, err := setup(cmd)
	if err != nil {
		return err
	}

	s.ctrl.AddEmitter(consoleEmitter())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("simulation started (%.0fs per tick, broker %s)\n", s.cfg.StepSeconds, s.cfg.Broker)

	result, err := s.ctrl.Run(ctx, sim.NewWallClock(s.cfg.Step()))
	if err != nil && !errors.Is(err, context.Canceled) {
		s.client.Close()
		return err
	}
	return s.finish(result)
}

func runLive(cmd *cobra.Command, args []string) error {
	s, err := setup(cmd)
	if err != nil {
		return err
	}

	emitter, records := viz.ChannelEmitter(16)
	s.ctrl.AddEmitter(emitter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type done struct {
		result *sim.Result
		err    error
	}
	doneCh := make(chan done, 1)
	go func() {
		result, err := s.ctrl.Run(ctx, sim.NewWallClock(s.cfg.Step()))
		doneCh <- done{result, err}
	}()

	p := tea.NewProgram(viz.NewModel(records, s.cfg.Capacity))
	if _, err := p.Run(); err != nil {
		cancel()
		<-doneCh
		s.client.Close()
		return err
	}

	cancel()
	d := <-doneCh
	if d.err != nil && !errors.Is(d.err, context.Canceled) {
		s.client.Close()
		return d.err
	}
	return s.finish(d.result)
}

// consoleEmitter writes the one-line-per-tick diagnostic surface.
func consoleEmitter() sim.Emitter {
	return sim.EmitterFunc(func(r sim.Record) error {
		fmt.Printf("\r[T: %.0f sec | %.2f min] | V: %.0f L | R_in: %.0f | R_out: %.0f | Status: %s      ",
			r.ElapsedMinutes*60, r.ElapsedMinutes, r.Volume, r.Inflow, r.Outflow, r.Status)
		return nil
	})
}

func logf(format string, v ...any) {
	fmt.Fprintf(os.Stderr, "\n"+format+"\n", v...)
}

func listSessions(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	sessions, err := st.List()
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("no sessions found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tTICKS\tFINAL(L)\tOVERFLOW\tUNDERFLOW\tOVERRUN")

	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.1f\t%d\t%d\t%d\n",
			s.ID,
			s.Timestamp.Format("2006-01-02 15:04:05"),
			s.Ticks,
			s.FinalVolume,
			s.Overflows,
			s.Underflows,
			s.Overruns,
		)
	}

	return w.Flush()
}

func plotSession(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(sessionID)
	if err != nil {
		return err
	}

	ticks, err := st.LoadTicks(sessionID)
	if err != nil {
		return err
	}

	if len(ticks) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("session: %s\n", meta.ID)
	fmt.Printf("ticks: %d  capacity: %.0f L\n\n", meta.Ticks, meta.Capacity)

	volumes := make([]float64, len(ticks))
	nets := make([]float64, len(ticks))
	for i, r := range ticks {
		volumes[i] = r.Volume
		nets[i] = r.Net
	}

	fmt.Println(asciigraph.Plot(volumes,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("volume (L)"),
	))
	fmt.Println()
	fmt.Println(asciigraph.Plot(nets,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("net rate (L/min)"),
	))

	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	ticks, err := st.LoadTicks(args[0])
	if err != nil {
		return err
	}

	if len(ticks) == 0 {
		return fmt.Errorf("no data to export")
	}

	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	header := []string{"tick", "elapsed_min", "volume", "inflow", "outflow", "net", "status", "overrun"}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range ticks {
		row := []string{
			strconv.Itoa(r.Tick),
			strconv.FormatFloat(r.ElapsedMinutes, 'f', 6, 64),
			strconv.FormatFloat(r.Volume, 'f', 6, 64),
			strconv.FormatFloat(r.Inflow, 'f', 6, 64),
			strconv.FormatFloat(r.Outflow, 'f', 6, 64),
			strconv.FormatFloat(r.Net, 'f', 6, 64),
			r.Status.String(),
			strconv.FormatBool(r.Overrun),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	ticks, err := st.LoadTicks(args[0])
	if err != nil {
		return err
	}

	out := struct {
		Session *storage.SessionMetadata `json:"session"`
		Ticks   []sim.Record             `json:"ticks"`
	}{meta, ticks}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
