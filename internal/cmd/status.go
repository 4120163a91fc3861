package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/GriffinCanCode/oneshot/internal/grpcclient"
	"github.com/GriffinCanCode/oneshot/internal/grpcserver"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show capture service health",
	Long: `Query the gRPC health service. The capture service reports NOT_SERVING
while a capture is in flight. With --watch every transition is printed.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("watch", false, "Stream status changes")
	statusCmd.Flags().String("service", grpcserver.ServiceName, "Health service name (empty for the whole server)")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	watch, _ := cmd.Flags().GetBool("watch")
	service, _ := cmd.Flags().GetString("service")

	client, err := grpcclient.New(grpcAddr)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	w := cmd.OutOrStdout()
	if watch {
		return client.Watch(cmd.Context(), service, func(resp *healthpb.HealthCheckResponse) {
			_ = printStatus(w, resp)
		})
	}

	resp, err := client.Check(cmd.Context(), service)
	if err != nil {
		return err
	}
	return printStatus(w, resp)
}

func printStatus(w io.Writer, resp *healthpb.HealthCheckResponse) error {
	data, err := protojson.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
