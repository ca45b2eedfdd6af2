package kv

import (
	"fmt"
	"strconv"

	"github.com/ValentinKolb/rKV/lib/backend"
	"github.com/spf13/cobra"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key (creates or overwrites)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]
			if cas, err := accessClient.Upsert(cmd.Context(), key, []byte(value)); err != nil {
				return err
			} else {
				fmt.Printf("set successfully (cas=%d)\n", cas)
			}
			return nil
		},
	}
	insertCmd = &cobra.Command{
		Use:   "insert [key] [value]",
		Short: "Sets the value for a key only if the key does not exist yet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]
			if cas, err := accessClient.Insert(cmd.Context(), key, []byte(value)); err != nil {
				return err
			} else {
				fmt.Printf("insert successfully (cas=%d)\n", cas)
			}
			return nil
		},
	}
	replaceCmd = &cobra.Command{
		Use:   "replace [key] [value] [cas]",
		Short: "Replaces the value for a key only if its version token still matches",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]
			cas, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("cas must be a number: %w", err)
			}
			if newCas, err := accessClient.Replace(
				cmd.Context(),
				key,
				[]byte(value),
				backend.CasToken(cas),
			); err != nil {
				return err
			} else {
				fmt.Printf("replace successfully (cas=%d)\n", newCas)
			}
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if doc, ok, err := accessClient.Get(cmd.Context(), key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%v, cas=%d, resp=%s\n", key, ok, doc.Cas, doc.Value)
			}
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := accessClient.Remove(cmd.Context(), key, backend.CasNone); err != nil {
				return err
			} else {
				fmt.Println("delete successfully")
			}
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if found, err := accessClient.Exists(cmd.Context(), key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%t\n", key, found)
			}
			return nil
		},
	}
	incrCmd = &cobra.Command{
		Use:   "incr [key] [delta]",
		Short: "Atomically increments a numeric counter (creates it if absent)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			delta, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("delta must be a number: %w", err)
			}
			if value, cas, err := accessClient.Increment(cmd.Context(), key, delta); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, value=%d, cas=%d\n", key, value, cas)
			}
			return nil
		},
	}
)
