package main

import (
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/questlog/questlog/internal/api/apitest"
	"github.com/questlog/questlog/internal/ui"
)

var devserverCmd = &cobra.Command{
	Use:     "devserver",
	GroupID: "advanced",
	Short:   "Run an in-memory backend for local testing",
	Long: `Run an in-memory backend that speaks the questlog API.

Records live only as long as the process. Point ql at it with:
  export QL_API_BASE_URL=http://127.0.0.1:3001
  export QL_AUTH_TOKEN=<printed token>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			token = uuid.NewString()
		}

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		srv := apitest.NewUnstartedServer(token)
		_ = srv.Listener.Close()
		srv.Listener = ln
		srv.Start()
		defer srv.Close()

		fmt.Printf("%s Dev backend listening on %s\n", ui.RenderAccent("🚀"), srv.URL)
		fmt.Printf("   export QL_API_BASE_URL=%s\n", srv.URL)
		fmt.Printf("   export QL_AUTH_TOKEN=%s\n", token)
		fmt.Printf("\nPress Ctrl+C to stop\n")

		<-cmd.Context().Done()
		fmt.Printf("\nServed %d requests\n", srv.RequestCount())
		return nil
	},
}

func init() {
	devserverCmd.Flags().String("addr", "127.0.0.1:3001", "listen address")
	devserverCmd.Flags().String("token", "", "accepted bearer token (default: random)")
	rootCmd.AddCommand(devserverCmd)
}
