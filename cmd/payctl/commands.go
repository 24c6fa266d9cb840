package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"payment-api/internal/config"
	"payment-api/internal/database"
	"payment-api/internal/models"
	"payment-api/internal/services"
	"payment-api/pkg/logging"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

// merchantKey returns the --key flag or ZPAY_MERCHANT_KEY.
func merchantKey(cmd *cobra.Command) (string, error) {
	key, _ := cmd.Flags().GetString("key")
	if key != "" {
		return key, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	if cfg.MerchantKey == "" {
		return "", fmt.Errorf("merchant key not set: use --key or ZPAY_MERCHANT_KEY")
	}
	return cfg.MerchantKey, nil
}

// parsePairs turns k=v arguments into a parameter map.
func parsePairs(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", arg)
		}
		params[k] = v
	}
	return params, nil
}

func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign key=value...",
		Short: "Print the gateway signature of a parameter set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := merchantKey(cmd)
			if err != nil {
				return err
			}
			params, err := parsePairs(args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), services.Sign(params, key))
			return nil
		},
	}

	cmd.Flags().StringP("key", "k", "", "Merchant key (defaults to ZPAY_MERCHANT_KEY)")

	return cmd
}

// buildNotification returns a signed payment notification.
func buildNotification(outTradeNo, money, status, key string, extra map[string]string) map[string]string {
	params := map[string]string{
		"out_trade_no": outTradeNo,
		"trade_status": status,
		"money":        money,
		"trade_no":     fmt.Sprintf("TEST%d", time.Now().UnixNano()),
	}
	for k, v := range extra {
		params[k] = v
	}
	params["sign"] = services.Sign(params, key)
	params["sign_type"] = "MD5"
	return params
}

func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify [key=value...]",
		Short: "Send a signed test notification to a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := merchantKey(cmd)
			if err != nil {
				return err
			}
			extra, err := parsePairs(args)
			if err != nil {
				return err
			}
			target, _ := cmd.Flags().GetString("url")
			order, _ := cmd.Flags().GetString("order")
			money, _ := cmd.Flags().GetString("money")
			status, _ := cmd.Flags().GetString("status")
			method, _ := cmd.Flags().GetString("method")
			if order == "" {
				return fmt.Errorf("--order is required")
			}

			params := buildNotification(order, money, status, key, extra)
			client := resty.New().SetTimeout(10 * time.Second)

			var resp *resty.Response
			if strings.EqualFold(method, "GET") {
				q := url.Values{}
				for k, v := range params {
					q.Set(k, v)
				}
				resp, err = client.R().SetContext(cmd.Context()).SetQueryParamsFromValues(q).Get(target)
			} else {
				resp, err = client.R().SetContext(cmd.Context()).SetFormData(params).Post(target)
			}
			if err != nil {
				return fmt.Errorf("failed to send notification: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", resp.StatusCode(), resp.String())
			return nil
		},
	}

	cmd.Flags().StringP("key", "k", "", "Merchant key (defaults to ZPAY_MERCHANT_KEY)")
	cmd.Flags().String("url", "http://localhost:8080/notify_url", "Notification endpoint")
	cmd.Flags().StringP("order", "o", "", "out_trade_no of the order")
	cmd.Flags().StringP("money", "m", "0.01", "Notified amount")
	cmd.Flags().StringP("status", "s", "TRADE_SUCCESS", "trade_status code")
	cmd.Flags().String("method", "POST", "HTTP method (GET or POST)")

	return cmd
}

func openStore() (*config.Config, func(), *database.OrderStore, *database.AudioStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	closeFn := func() { database.Close(db, nil) }
	return cfg, closeFn, database.NewOrderStore(db), database.NewAudioStore(db), nil
}

func staleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List pending orders older than the given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeFn, orders, _, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			age, _ := cmd.Flags().GetDuration("age")
			if age == 0 {
				age = cfg.StaleOrderAge
			}
			found, err := services.NewStaleOrderReporter(orders, age).Find(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, o := range found {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", o.OutTradeNo, o.UserID, o.Amount.StringFixed(2), o.CreatedAt.Format(time.RFC3339))
			}
			fmt.Fprintf(out, "%d stale pending orders\n", len(found))
			return nil
		},
	}

	cmd.Flags().Duration("age", 0, "Minimum order age (defaults to STALE_ORDER_AGE)")

	return cmd
}

func audioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audio",
		Short: "Manage the gated audio catalogue",
	}

	add := &cobra.Command{
		Use:   "add [audio_name]",
		Short: "Add a track to the catalogue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, closeFn, _, audio, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			display, _ := cmd.Flags().GetString("display")
			phase, _ := cmd.Flags().GetString("phase")
			free, _ := cmd.Flags().GetBool("free")
			order, _ := cmd.Flags().GetInt("order")
			if display == "" {
				display = args[0]
			}

			track := &models.AudioTrack{
				AudioName:        args[0],
				AudioDisplayName: display,
				CyclePhase:       phase,
				IsFree:           free,
				DisplayOrder:     order,
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := audio.Create(ctx, track); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s, free=%v)\n", track.AudioName, track.CyclePhase, track.IsFree)
			return nil
		},
	}

	add.Flags().String("display", "", "Display name")
	add.Flags().String("phase", "menstrual", "Cycle phase (menstrual, follicular, ovulation, luteal)")
	add.Flags().Bool("free", false, "Open to non-members")
	add.Flags().Int("order", 0, "Display order within the phase")

	cmd.AddCommand(add)
	return cmd
}

func init() {
	logging.InitLogging()
}
