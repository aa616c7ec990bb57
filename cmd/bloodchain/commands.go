package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/example/bloodchain/internal/bloodchain"
	"github.com/example/bloodchain/internal/donation"
	"github.com/example/bloodchain/internal/solana"
	"github.com/example/bloodchain/internal/types"
)

var initializeCmd = &cobra.Command{
	Use:   "initialize",
	Short: "Create a donation account and run the program's initialize instruction",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		var res bloodchain.Result
		keypair, _ := cmd.Flags().GetString("account-keypair")
		if keypair != "" {
			account, err := solana.LoadWallet(keypair)
			if err != nil {
				return err
			}
			res, err = a.service.InitializeAccount(cmd.Context(), account)
			if err != nil {
				return err
			}
		} else {
			res, err = a.service.Initialize(cmd.Context())
			if err != nil {
				return err
			}
		}
		a.logger.WithFields(logrus.Fields{
			"signature": res.Signature.String(),
			"account":   res.Account.String(),
		}).Info("initialize confirmed")
		fmt.Fprintf(cmd.OutOrStdout(), "signature: %s\naccount:   %s\n", res.Signature, res.Account)
		return nil
	},
}

var donateCmd = &cobra.Command{
	Use:   "donate",
	Short: "Append a donation record to an initialized account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		account, err := accountFlag(cmd)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		bloodType, _ := cmd.Flags().GetString("blood-type")
		rawDate, _ := cmd.Flags().GetString("date")
		date, err := types.ParseDate(rawDate)
		if err != nil {
			return errors.Wrapf(err, "parse --date %q", rawDate)
		}
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		res, err := a.service.AddDonation(cmd.Context(), account, donation.Donation{
			DonorName: name,
			BloodType: bloodType,
			Date:      date,
		})
		if err != nil {
			return err
		}
		a.logger.WithField("signature", res.Signature.String()).Info("donation recorded")
		fmt.Fprintln(cmd.OutOrStdout(), res.Signature)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the donation history stored in an account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		account, err := accountFlag(cmd)
		if err != nil {
			return err
		}
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		if onChain, _ := cmd.Flags().GetBool("on-chain"); onChain {
			res, err := a.service.RetrieveHistory(cmd.Context(), account)
			if err != nil {
				return err
			}
			a.logger.WithField("signature", res.Signature.String()).Info("retrieve confirmed")
		}
		h, err := a.service.History(cmd.Context(), account)
		if err != nil {
			return err
		}
		return printHistory(cmd, h.Donations)
	},
}

var airdropCmd = &cobra.Command{
	Use:   "airdrop",
	Short: "Request SOL for the payer wallet (localnet and devnet only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		amount, _ := cmd.Flags().GetFloat64("sol")
		lamports := solToLamports(amount)
		if lamports == 0 {
			return errors.New("--sol must be positive")
		}
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		sig, err := a.client.RequestAirdrop(cmd.Context(), a.client.Payer(), lamports)
		if err != nil {
			return err
		}
		a.logger.WithFields(logrus.Fields{
			"signature": sig.String(),
			"lamports":  lamports,
		}).Info("airdrop confirmed")
		fmt.Fprintln(cmd.OutOrStdout(), sig)
		return nil
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "Print the SOL balance of an address, or of the payer",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		target := a.client.Payer()
		if len(args) == 1 {
			target, err = sol.PublicKeyFromBase58(args[0])
			if err != nil {
				return errors.Wrapf(err, "parse address %q", args[0])
			}
		}
		lamports, took, err := a.client.GetBalance(cmd.Context(), target)
		if err != nil {
			return err
		}
		a.logger.WithField("took", took).Debug("balance fetched")
		fmt.Fprintf(cmd.OutOrStdout(), "%s %.9f SOL\n", target, lamportsToSOL(lamports))
		return nil
	},
}

func init() {
	initializeCmd.Flags().String("account-keypair", "", "keypair file for the donation account (default: generate one)")

	donateCmd.Flags().String("account", "", "donation account address")
	donateCmd.Flags().String("name", "", "donor name (at most 32 bytes)")
	donateCmd.Flags().String("blood-type", "", "ABO/Rh blood type, e.g. O-")
	donateCmd.Flags().String("date", "", "donation date, RFC3339 or YYYY-MM-DD (default: now)")
	_ = donateCmd.MarkFlagRequired("account")
	_ = donateCmd.MarkFlagRequired("name")
	_ = donateCmd.MarkFlagRequired("blood-type")

	historyCmd.Flags().String("account", "", "donation account address")
	historyCmd.Flags().Bool("on-chain", false, "also run the retrieve instruction before reading")
	_ = historyCmd.MarkFlagRequired("account")

	airdropCmd.Flags().Float64("sol", 1, "amount of SOL to request")
}

func accountFlag(cmd *cobra.Command) (sol.PublicKey, error) {
	raw, _ := cmd.Flags().GetString("account")
	pk, err := sol.PublicKeyFromBase58(strings.TrimSpace(raw))
	if err != nil {
		return sol.PublicKey{}, errors.Wrapf(err, "parse --account %q", raw)
	}
	return pk, nil
}

func printHistory(cmd *cobra.Command, history []donation.Donation) error {
	if len(history) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no donations recorded")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tDONOR\tBLOOD TYPE\tDATE")
	for i, d := range history {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, d.DonorName, d.BloodType, d.Date.UTC().Format("2006-01-02"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	entry := types.NewHistoryEntry("", history, "", time.Time{})
	counts := types.CountByBloodType(entry.Donations)
	parts := make([]string, 0, len(counts))
	for _, bt := range donation.BloodTypes {
		if n := counts[bt]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", bt, n))
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d donations: %s\n", len(history), strings.Join(parts, " "))
	return nil
}
