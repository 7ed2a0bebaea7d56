package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/spec-kit/official-relay/internal/auth"
	"github.com/spec-kit/official-relay/internal/domain"
	"github.com/spec-kit/official-relay/internal/official"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	out := envOr("RELAYCTL_OUT", "text")

	root := &cobra.Command{
		Use:           "relayctl",
		Short:         "Operator tooling for the official account relay",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&out, "out", out, "Output format: json|text")

	root.AddCommand(newTokenCmd(&out), newSignatureCmd(&out), newCallbackCmd())
	return root
}

func newTokenCmd(out *string) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Service bearer tokens for /api/official",
	}

	var (
		secret  = envOr("API_JWT_SECRET", "")
		subject string
		ttl     = 60
	)
	mintCmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a bearer token signed with API_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			tokens := auth.NewTokenManager(secret, ttl)
			if tokens == nil {
				return fmt.Errorf("missing secret (flag --secret or env API_JWT_SECRET)")
			}
			raw, meta, err := tokens.GenerateToken(subject)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), *out, raw, map[string]any{
				"token":      raw,
				"subject":    meta.Subject,
				"expires_at": meta.ExpiresAt.Format(time.RFC3339),
			})
		},
	}
	mintCmd.Flags().StringVar(&secret, "secret", secret, "HS256 secret (env API_JWT_SECRET)")
	mintCmd.Flags().StringVar(&subject, "subject", "", "Caller name stored in the sub claim")
	mintCmd.Flags().IntVar(&ttl, "ttl-minutes", ttl, "Token lifetime in minutes")

	tokenCmd.AddCommand(mintCmd)
	return tokenCmd
}

func newSignatureCmd(out *string) *cobra.Command {
	var (
		token     = envOr("WX_TOKEN", "")
		timestamp string
		nonce     string
	)
	cmd := &cobra.Command{
		Use:   "signature",
		Short: "Compute the callback handshake signature",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return fmt.Errorf("missing token (flag --token or env WX_TOKEN)")
			}
			if timestamp == "" {
				timestamp = strconv.FormatInt(time.Now().Unix(), 10)
			}
			if nonce == "" {
				nonce = uuid.NewString()[:8]
			}
			sig := official.Signature(token, timestamp, nonce)
			return render(cmd.OutOrStdout(), *out, sig, map[string]any{
				"signature": sig,
				"timestamp": timestamp,
				"nonce":     nonce,
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", token, "Handshake token (env WX_TOKEN)")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "Timestamp, defaults to now")
	cmd.Flags().StringVar(&nonce, "nonce", "", "Nonce, defaults to a random value")
	return cmd
}

func newCallbackCmd() *cobra.Command {
	var (
		baseURL = envOr("RELAY_URL", "http://localhost:8080")
		from    string
		code    string
		event   = "SCAN"
	)
	cmd := &cobra.Command{
		Use:   "callback",
		Short: "Deliver a simulated scan event carrying a binding code",
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == "" || code == "" {
				return fmt.Errorf("--from and --code are required")
			}
			key := domain.BindingSceneStr(code)
			if strings.EqualFold(event, "subscribe") {
				key = domain.ScanScenePrefix + key
			}
			body := fmt.Sprintf(`<xml><ToUserName><![CDATA[relayctl]]></ToUserName>`+
				`<FromUserName><![CDATA[%s]]></FromUserName><CreateTime>%d</CreateTime>`+
				`<MsgType><![CDATA[event]]></MsgType><Event><![CDATA[%s]]></Event>`+
				`<EventKey><![CDATA[%s]]></EventKey></xml>`, from, time.Now().Unix(), event, key)

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Post(strings.TrimRight(baseURL, "/")+"/wx/callback", "text/xml", bytes.NewBufferString(body))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			reply, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read callback reply: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status=%d body=%s\n", resp.StatusCode, reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", baseURL, "Relay base URL (env RELAY_URL)")
	cmd.Flags().StringVar(&from, "from", "", "FromUserName of the simulated follower")
	cmd.Flags().StringVar(&code, "code", "", "Binding code, without the bind_ prefix")
	cmd.Flags().StringVar(&event, "event", event, "SCAN or subscribe")
	return cmd
}

func render(w io.Writer, format, text string, fields map[string]any) error {
	if format != "json" {
		_, err := fmt.Fprintln(w, text)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(fields)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
