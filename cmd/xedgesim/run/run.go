// Package run implements xedgesim's only subcommand: load a scenario file,
// build one concrete adapter per node, run the coordinator, and print a
// summary.
package run

import (
	"fmt"
	"os"

	"github.com/docker/docker/client"
	"github.com/spf13/cobra"

	"github.com/rekrevs/xedgesim/cmd/xedgesim/ui"
	"github.com/rekrevs/xedgesim/internal/adapter"
	"github.com/rekrevs/xedgesim/internal/adapter/dockernode"
	"github.com/rekrevs/xedgesim/internal/adapter/inprocess"
	"github.com/rekrevs/xedgesim/internal/adapter/socketnode"
	"github.com/rekrevs/xedgesim/internal/coordinator"
	"github.com/rekrevs/xedgesim/internal/emulator"
	"github.com/rekrevs/xedgesim/internal/netmodel"
	"github.com/rekrevs/xedgesim/internal/scenario"
	"github.com/rekrevs/xedgesim/internal/syntheticnode"
)

func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a co-simulation scenario to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarioPath := args[0]
			cfg, err := scenario.Load(scenarioPath)
			if err != nil {
				return err
			}

			coordCfg, closeAdapters, err := buildCoordinatorConfig(cfg)
			defer closeAdapters()
			if err != nil {
				return err
			}

			c, err := coordinator.New(coordCfg)
			if err != nil {
				return fmt.Errorf("build coordinator: %w", err)
			}

			fmt.Fprintln(os.Stderr, ui.InfoMsg("running scenario %s", ui.Accent(scenarioPath)))
			summary := c.Run(cmd.Context())
			printSummary(summary)
			if summary.Err != nil {
				return summary.Err
			}
			return nil
		},
	}
	return cmd
}

// buildCoordinatorConfig translates a scenario.Config into a
// coordinator.Config, constructing one concrete NodeAdapter per node spec.
// The returned closer tears down any resources (docker clients) opened
// along the way, regardless of whether construction succeeded.
func buildCoordinatorConfig(cfg *scenario.Config) (coordinator.Config, func(), error) {
	var dockerClient *client.Client
	closers := func() {
		if dockerClient != nil {
			_ = dockerClient.Close()
		}
	}

	nodes := make([]coordinator.NodeSpec, 0, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		var a adapter.NodeAdapter
		switch n.Adapter {
		case scenario.AdapterSocket:
			a = socketnode.New(socketnode.Config{NodeID: n.NodeID, Address: n.Address})

		case scenario.AdapterContainer:
			if dockerClient == nil {
				cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
				if err != nil {
					return coordinator.Config{}, closers, fmt.Errorf("create docker client: %w", err)
				}
				dockerClient = cli
			}
			a = dockernode.New(dockernode.Config{
				NodeID:        n.NodeID,
				ContainerName: n.ContainerName,
				Cmd:           n.Cmd,
			}, dockerClient)

		case scenario.AdapterEmulator:
			node := emulator.New(emulator.Config{
				NodeID:                  n.NodeID,
				WorkingDir:              n.WorkingDir,
				EmulatorBinary:          n.EmulatorBinary,
				PlatformDescriptionPath: n.PlatformDescriptionPath,
				FirmwareELFPath:         n.FirmwareELFPath,
				MachineName:             n.MachineName,
				SerialUartName:          n.SerialUartName,
				MonitorHost:             n.MonitorHost,
				MonitorPort:             n.MonitorPort,
			})
			a = inprocess.New(n.NodeID, node)

		case scenario.AdapterInProcess:
			node := syntheticnode.New(syntheticnode.Config{})
			a = inprocess.New(n.NodeID, node)

		default:
			return coordinator.Config{}, closers, fmt.Errorf("node %q: adapter %q not recognized", n.NodeID, n.Adapter)
		}

		nodes = append(nodes, coordinator.NodeSpec{NodeID: n.NodeID, Adapter: a, Params: n.Params})
	}

	return coordinator.Config{
		DurationUs:   cfg.DurationUs,
		QuantumUs:    cfg.QuantumUs,
		ScenarioSeed: cfg.ScenarioSeed,
		NetworkModel: buildNetworkModel(cfg.ScenarioSeed, cfg.Network),
		Nodes:        nodes,
	}, closers, nil
}

func buildNetworkModel(scenarioSeed uint64, cfg scenario.NetworkConfig) netmodel.NetworkModel {
	if cfg.Model != scenario.NetworkLatency {
		return netmodel.NewDirectNetworkModel()
	}

	links := make(map[netmodel.LinkKey]netmodel.LinkConfig, len(cfg.Links))
	for _, l := range cfg.Links {
		links[netmodel.LinkKey{Src: l.Src, Dst: l.Dst}] = netmodel.LinkConfig{LatencyUs: l.LatencyUs, LossRate: l.LossRate}
	}
	return netmodel.NewLatencyNetworkModel(netmodel.LatencyConfig{
		ScenarioSeed:     scenarioSeed,
		DefaultLatencyUs: cfg.DefaultLatencyUs,
		DefaultLossRate:  cfg.DefaultLossRate,
		Links:            links,
	})
}

func printSummary(s coordinator.Summary) {
	if s.Err != nil {
		fmt.Println(ui.ErrorMsg("run %s aborted: %v", ui.Accent(s.RunID), s.Err))
	} else {
		fmt.Println(ui.SuccessMsg("run %s complete", ui.Accent(s.RunID)))
	}
	fmt.Print(ui.KeyValues("  ",
		ui.KV("scenario_seed", fmt.Sprintf("%d", s.ScenarioSeed)),
		ui.KV("virtual_time_us", fmt.Sprintf("%d", s.VirtualTimeUs)),
		ui.KV("wall_clock", s.WallClock.String()),
	))

	if len(s.Nodes) == 0 {
		return
	}
	headers := []string{"node", "sent", "recv", "final_time_us"}
	rows := make([][]string, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		rows = append(rows, []string{n.NodeID, fmt.Sprintf("%d", n.EventsSent), fmt.Sprintf("%d", n.EventsRecv), fmt.Sprintf("%d", n.FinalTimeUs)})
	}
	fmt.Println(ui.Table(headers, rows))
}
