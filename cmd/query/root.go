package query

import (
	"fmt"

	"github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/lib/access"
	"github.com/ValentinKolb/rKV/lib/backend"
	"github.com/ValentinKolb/rKV/lib/plancache"
	"github.com/ValentinKolb/rKV/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	accessClient *access.Client

	// QueryCommands represents the query command group
	QueryCommands = &cobra.Command{
		Use:               "query",
		Short:             "Execute server-side queries",
		PersistentPreRunE: setupQueryClient,
	}

	execCmd = &cobra.Command{
		Use:   "exec [statement] [params...]",
		Short: "Prepares a statement on the server and executes it",
		Long: util.WrapString("Prepares a statement on the server and executes it with the given parameters. " +
			"The compiled plan is cached client-side under --name and --version, so repeated " +
			"executions of the same query skip the prepare round trip."),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statement := args[0]

			params := make(backend.Params, 0, len(args)-1)
			for _, arg := range args[1:] {
				params = append(params, []byte(arg))
			}

			rows, err := accessClient.RunQuery(cmd.Context(), plancache.Query{
				Name:      viper.GetString("name"),
				Version:   viper.GetInt("query-version"),
				Statement: statement,
			}, params)
			if err != nil {
				return err
			}

			fmt.Printf("%d row(s)\n", len(rows))
			for i, row := range rows {
				fmt.Printf("%d: %s\n", i, row)
			}
			return nil
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the query command
	util.SetupRPCClientFlags(QueryCommands)

	// Set default bucket ID for query operations
	QueryCommands.PersistentFlags().Int("bucket", 1, util.WrapString("ID of the bucket to connect to"))

	// Query identity flags
	QueryCommands.PersistentFlags().String("name", "adhoc", util.WrapString("Logical name of the query (part of the plan cache key)"))
	QueryCommands.PersistentFlags().Int("query-version", 1, util.WrapString("Version of the query (bump to invalidate cached plans)"))

	// Add subcommands
	QueryCommands.AddCommand(execCmd)
}

// setupQueryClient initializes the access client over the RPC backend
func setupQueryClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()
	bucketID := util.GetBucketID()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Create the RPC backend
	be, err := client.NewRPCBackend(
		bucketID,
		*config,
		t,
		s,
	)
	if err != nil {
		return err
	}

	// Wrap it in the access client
	accessClient = access.New(
		be,
		plancache.New(be, plancache.Options{}),
		util.GetMetricsSink(),
		util.GetAccessOptions(),
	)

	return nil
}
