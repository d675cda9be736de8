// Command triagectl runs the triage analysis offline. Support leads use it
// to check how a message is classified and which patterns from a pattern
// file would answer it before loading them.
//
//	triagectl analyze "Ik krijg error 500 bij het inloggen"
//	triagectl match --patterns patterns.yaml "reset my password"
//	triagectl decide --patterns patterns.yaml --lang en "reset my password"
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deskpilot/support-triage/internal/config"
	"github.com/deskpilot/support-triage/internal/domain"
	"github.com/deskpilot/support-triage/internal/patternfile"
	"github.com/deskpilot/support-triage/internal/triage"
)

type options struct {
	configPath   string
	patternsPath string
	language     string
	customerName string
	aiReplies    int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "triagectl",
		Short:         "Inspect support triage decisions offline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file with triage fallbacks (default: built-in settings)")

	analyze := &cobra.Command{
		Use:   "analyze [message]",
		Short: "Show keywords, error codes, category, priority and language for a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.settings()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), triage.NewAnalyzer(s).Analyze(strings.Join(args, " ")))
		},
	}

	match := &cobra.Command{
		Use:   "match [message]",
		Short: "Rank the patterns of a pattern file against a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patterns, err := opts.patterns()
			if err != nil {
				return err
			}
			return printMatches(cmd.OutOrStdout(), triage.MatchPatterns(strings.Join(args, " "), patterns))
		},
	}
	match.Flags().StringVarP(&opts.patternsPath, "patterns", "p", "", "Pattern file (YAML)")
	_ = match.MarkFlagRequired("patterns")

	decide := &cobra.Command{
		Use:   "decide [message]",
		Short: "Show the outcome the guard would pick for a new customer message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := opts.decide(strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), d)
		},
	}
	decide.Flags().StringVarP(&opts.patternsPath, "patterns", "p", "", "Pattern file (YAML)")
	decide.Flags().StringVar(&opts.language, "lang", "", "Conversation language (default: detected)")
	decide.Flags().StringVar(&opts.customerName, "customer", "", "Customer name used in replies")
	decide.Flags().IntVar(&opts.aiReplies, "ai-replies", 0, "Assistant replies already in the conversation")

	root.AddCommand(analyze, match, decide)
	return root
}

func (o *options) settings() (domain.Settings, error) {
	if o.configPath == "" {
		return domain.DefaultSettings(), nil
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return domain.Settings{}, err
	}
	return cfg.Triage.Fallback(), nil
}

func (o *options) patterns() ([]*domain.Pattern, error) {
	if o.patternsPath == "" {
		return nil, nil
	}
	return patternfile.Load(o.patternsPath)
}

func (o *options) decide(content string) (triage.Decision, error) {
	s, err := o.settings()
	if err != nil {
		return triage.Decision{}, err
	}
	patterns, err := o.patterns()
	if err != nil {
		return triage.Decision{}, err
	}

	analysis := triage.NewAnalyzer(s).Analyze(content)
	conv := &domain.Conversation{
		ID:        "offline",
		Language:  o.language,
		Status:    domain.StatusOpen,
		HandledBy: domain.HandledByAI,
		Customer:  domain.Customer{Name: o.customerName},
	}
	msg := domain.Message{ConversationID: conv.ID, SenderType: domain.SenderUser, Content: content}
	history := make([]domain.Message, 0, o.aiReplies+1)
	for i := 0; i < o.aiReplies; i++ {
		history = append(history, domain.Message{ConversationID: conv.ID, SenderType: domain.SenderAI})
	}
	history = append(history, msg)

	return triage.NewGuard(nil).Decide(triage.Input{
		Conversation: conv,
		Message:      &msg,
		History:      history,
		Source:       triage.SourceCustomerMessage,
		Analysis:     analysis,
		Matches:      triage.MatchPatterns(content, patterns),
		Settings:     s,
	}), nil
}

func printMatches(w io.Writer, matches []triage.Match) error {
	if len(matches) == 0 {
		_, err := fmt.Fprintln(w, "no pattern matched")
		return err
	}
	for i, m := range matches {
		eligible := "no"
		if m.AutoRespondEligible() {
			eligible = "yes"
		}
		_, err := fmt.Fprintf(w, "%d. %-30s confidence=%.2f min=%.2f eligible=%s keywords=%s\n",
			i+1, m.Pattern.Name, m.Confidence, m.Pattern.MinConfidence, eligible,
			strings.Join(m.MatchedKeywords, ","))
		if err != nil {
			return err
		}
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
