package main

import (
	"fmt"
	"text/tabwriter"

	"backtranslate/internal/device"

	"github.com/spf13/cobra"
)

// devicesCmd lists the devices a run can use
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List GPUs visible to bt",
	Long: `Lists GPUs reported by nvidia-smi. When translation.endpoints is configured,
each endpoint counts as one device and is listed instead.`,
	RunE: runDevices,
}

func runDevices(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	if n := len(cfg.Translation.Endpoints); n > 0 {
		fmt.Fprintln(tw, "SLOT\tENDPOINT")
		for i := 0; i < n; i++ {
			fmt.Fprintf(tw, "%d\t%s\n", i, cfg.Translation.EndpointFor(i))
		}
		return tw.Flush()
	}

	gpus, err := device.Discover(ctx)
	if err != nil {
		return err
	}
	if len(gpus) == 0 {
		fmt.Fprintln(out, "No GPUs found; runs will use the CPU.")
		return nil
	}

	fmt.Fprintln(tw, "INDEX\tNAME\tMEMORY")
	for _, g := range gpus {
		fmt.Fprintf(tw, "%d\t%s\t%d MiB\n", g.Index, g.Name, g.MemoryMB)
	}
	return tw.Flush()
}
