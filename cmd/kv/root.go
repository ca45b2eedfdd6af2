package kv

import (
	"github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/lib/access"
	"github.com/ValentinKolb/rKV/lib/plancache"
	"github.com/ValentinKolb/rKV/rpc/client"
	"github.com/spf13/cobra"
)

var (
	accessClient *access.Client

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform key-value store operations",
		PersistentPreRunE: setupKVClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the KV command
	util.SetupRPCClientFlags(KeyValueCommands)

	// Set default bucket ID for key value operations
	KeyValueCommands.PersistentFlags().Int("bucket", 1, util.WrapString("ID of the bucket to connect to"))

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(insertCmd)
	KeyValueCommands.AddCommand(replaceCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(incrCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient initializes the access client over the RPC backend
func setupKVClient(cmd *cobra.Command, _ []string) error {
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
