package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"poe/internal/chain"
	jwttoken "poe/internal/jwt_token"
	"poe/internal/platform/config"
	platformredis "poe/internal/platform/redis"
	"poe/internal/registry/client"
	"poe/internal/registry/models"
	id "poe/pkg/domain"
)

type rootOptions struct {
	server string
	token  string
	record models.RecordRequest
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "poectl",
		Short:         "Register, transfer and look up proof-of-existence records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("POE_SERVER", "http://localhost:8080"), "registry base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("POE_TOKEN"), "bearer token for mutating commands")

	root.AddCommand(
		newIdentityCmd(opts),
		newTokenCmd(),
		newCreateCmd(opts),
		newDeleteCmd(opts),
		newTransferCmd(opts),
		newLookupCmd(opts),
		newHeightCmd(),
	)
	return root
}

func recordFlags(cmd *cobra.Command, req *models.RecordRequest) {
	cmd.Flags().StringVar(&req.ID, "id", "", "record identifier")
	cmd.Flags().StringVar(&req.Name, "name", "", "record name")
	cmd.Flags().Uint8Var(&req.Age, "age", 0, "record age (0-255)")
	cmd.Flags().StringVar(&req.Encoding, "encoding", models.EncodingUTF8, "encoding of --id and --name: utf8, hex or base64")
}

func newIdentityCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Print the content identity of a record without contacting the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			record, err := opts.record.ToRecord()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), models.IdentityOf(record).String())
			return err
		},
	}
	recordFlags(cmd, &opts.record)
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		signingKey string
		issuer     string
		audience   string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <account>",
		Short: "Mint a development bearer token for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := id.ParseAccountID(args[0])
			if err != nil {
				return err
			}
			token, err := jwttoken.NewJWTService(signingKey, issuer, audience).GenerateToken(account, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&signingKey, "signing-key", envOr("POE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"), "HS256 signing key")
	cmd.Flags().StringVar(&issuer, "issuer", envOr("POE_JWT_ISSUER", "poe"), "token issuer")
	cmd.Flags().StringVar(&audience, "audience", envOr("POE_JWT_AUDIENCE", "poe-registry"), "token audience")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func newCreateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a record to the token's account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			entry, err := opts.client().Create(cmd.Context(), opts.record)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		},
	}
	recordFlags(cmd, &opts.record)
	return cmd
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove a record owned by the token's account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.client().Delete(cmd.Context(), opts.record)
		},
	}
	recordFlags(cmd, &opts.record)
	return cmd
}

func newTransferCmd(opts *rootOptions) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer a record to another account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			entry, err := opts.client().Transfer(cmd.Context(), models.TransferRequest{RecordRequest: opts.record, To: to})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		},
	}
	recordFlags(cmd, &opts.record)
	cmd.Flags().StringVar(&to, "to", "", "recipient account")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newLookupCmd(opts *rootOptions) *cobra.Command {
	var recordID string
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Show the owner of a record, by content or by --record-id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := opts.client()
			var (
				entry *models.Entry
				err   error
			)
			if recordID != "" {
				rid, perr := models.ParseRecordID(recordID)
				if perr != nil {
					return perr
				}
				entry, err = c.LookupByID(cmd.Context(), rid)
			} else {
				entry, err = c.Lookup(cmd.Context(), opts.record)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		},
	}
	recordFlags(cmd, &opts.record)
	cmd.Flags().StringVar(&recordID, "record-id", "", "hex content identity")
	return cmd
}

// newHeightCmd raises the ledger height key read by a server running with
// POE_HEIGHT_SOURCE=redis. Intended for development ledgers without a block
// producer.
func newHeightCmd() *cobra.Command {
	var (
		redisURL string
		key      string
	)
	cmd := &cobra.Command{
		Use:   "height <block>",
		Short: "Advance the redis-backed ledger height",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := id.ParseBlockNumber(args[0])
			if err != nil {
				return err
			}
			if redisURL == "" {
				return fmt.Errorf("--redis-url is required")
			}
			rc, err := platformredis.New(cmd.Context(), config.RedisConfig{URL: redisURL})
			if err != nil {
				return err
			}
			defer rc.Close()

			stored, err := chain.NewRedisHeight(rc.Client, key).Advance(cmd.Context(), target)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), stored.String())
			return err
		},
	}
	cmd.Flags().StringVar(&redisURL, "redis-url", os.Getenv("POE_REDIS_URL"), "redis URL holding the height key")
	cmd.Flags().StringVar(&key, "key", envOr("POE_HEIGHT_KEY", "poe:height"), "height key")
	return cmd
}

func (o *rootOptions) client() *client.Client {
	return client.New(o.server, client.WithToken(o.token))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
