package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-auth/client"
	"github.com/jrsteele09/go-session-auth/internal/obs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "AUTHCTL"

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "authctl",
		Short:         "Sign in to a session auth server and call it from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			obs.NewLogger(obs.LogConfig{Level: v.GetString("log-level"), Pretty: true, App: "authctl", Out: os.Stderr})
		},
	}

	root.PersistentFlags().String("server", "http://localhost:8080", "server base url")
	root.PersistentFlags().String("session", defaultSessionPath(), "file the session is kept in")
	root.PersistentFlags().Duration("timeout", 10*time.Second, "per command timeout")
	root.PersistentFlags().String("log-level", "warn", "log level")
	_ = v.BindPFlags(root.PersistentFlags())

	root.AddCommand(
		loginCmd(v),
		logoutCmd(v),
		refreshCmd(v),
		meCmd(v),
		challengeCmd(v),
		changePasswordCmd(v),
	)
	return root
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".authctl-session.json"
	}
	return filepath.Join(dir, "authctl", "session.json")
}

// withSession restores the saved session, runs fn and saves the session
// again, so renewed tokens survive between invocations.
func withSession(cmd *cobra.Command, v *viper.Viper, fn func(ctx context.Context, s *client.SessionContext) error) error {
	c, err := client.NewResilient(v.GetString("server"))
	if err != nil {
		return err
	}
	s, err := client.NewSessionContext(c)
	if err != nil {
		return err
	}
	defer s.Close()

	path := v.GetString("session")
	snap, err := loadSnapshot(path)
	if err != nil {
		return err
	}
	s.Restore(snap)

	ctx, cancel := context.WithTimeout(cmd.Context(), v.GetDuration("timeout"))
	defer cancel()
	runErr := fn(ctx, s)

	if err := saveSnapshot(path, s.Snapshot()); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func loginCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "login",
		Short:   "Sign in with email and password",
		PreRunE: bindFlags(v),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, v, func(ctx context.Context, s *client.SessionContext) error {
				identity, err := s.Login(ctx, v.GetString("email"), v.GetString("password"))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), identity)
			})
		},
	}
	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password, or AUTHCTL_PASSWORD")
	return cmd
}

func logoutCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, v, func(ctx context.Context, s *client.SessionContext) error {
				s.Logout()
				return nil
			})
		},
	}
}

func refreshCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Renew the access token with the saved refresh token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, v, func(ctx context.Context, s *client.SessionContext) error {
				if err := s.RefreshSession(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "access token renewed")
				return err
			})
		},
	}
}

func meCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the identity the server sees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, v, func(ctx context.Context, s *client.SessionContext) error {
				me, err := s.Me(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), me)
			})
		},
	}
}

func challengeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "challenge",
		Short:   "Re-enter the password and print a challenge token for change-password",
		PreRunE: bindFlags(v),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, v, func(ctx context.Context, s *client.SessionContext) error {
				otp, err := s.StartChallenge(ctx, v.GetString("password"))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), otp)
				return err
			})
		},
	}
	cmd.Flags().String("password", "", "current password, or AUTHCTL_PASSWORD")
	return cmd
}

func changePasswordCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "change-password",
		Short:   "Change the password using a challenge token",
		PreRunE: bindFlags(v),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, v, func(ctx context.Context, s *client.SessionContext) error {
				if err := s.ChangePassword(ctx, v.GetString("otp"), v.GetString("new-password")); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "password changed")
				return err
			})
		},
	}
	cmd.Flags().String("otp", "", "challenge token from the challenge command")
	cmd.Flags().String("new-password", "", "new password, or AUTHCTL_NEW_PASSWORD")
	return cmd
}

// bindFlags binds the running command's own flags, so commands sharing a flag
// name do not overwrite each other's binding.
func bindFlags(v *viper.Viper) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return v.BindPFlags(cmd.Flags())
	}
}

func loadSnapshot(path string) (client.Snapshot, error) {
	var snap client.Snapshot
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("read session: %w", err)
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, fmt.Errorf("decode session %s: %w", path, err)
	}
	return snap, nil
}

func saveSnapshot(path string, snap client.Snapshot) error {
	if snap.Identity == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove session: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
