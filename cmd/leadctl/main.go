package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ILLUVRSE/leadops/internal/auth"
	"github.com/ILLUVRSE/leadops/internal/models"
	"github.com/ILLUVRSE/leadops/internal/optimizer"
	"github.com/ILLUVRSE/leadops/internal/routing"
	"github.com/ILLUVRSE/leadops/internal/supervisor"
)

var rootCmd = &cobra.Command{
	Use:   "leadctl",
	Short: "Operator CLI for the leadops service",
	Long: `leadctl inspects and steers a running leadops service: dashboard and health,
alerts, operator overrides, optimization cycles and routing dry runs.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LEADCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8090", "leadops service base url")
	rootCmd.PersistentFlags().String("token", "", "bearer token for operator routes")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "request timeout")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(alertsCmd())
	rootCmd.AddCommand(ackCmd())
	rootCmd.AddCommand(overrideCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(cycleCmd())
	rootCmd.AddCommand(tokenCmd())
}

func client() *apiClient {
	return newAPIClient(viper.GetString("server"), viper.GetString("token"), viper.GetDuration("timeout"))
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show system status and per-agent health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var m supervisor.DashboardMetrics
			if err := client().get(cmd.Context(), "/v1/supervisor/dashboard", &m); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(m)
			}
			fmt.Printf("status %s  health %.3f  open alerts %d (critical %d)  overrides %d  directives %d\n",
				m.SystemStatus, m.HealthScore, m.OpenAlerts, m.CriticalAlerts, m.ActiveOverrides, m.ActiveDirectives)
			fmt.Printf("rules %d/%d enabled  campaigns %d active  optimizer cycles %d\n",
				m.Routing.EnabledRules, m.Routing.Rules, m.Campaigns.ActiveCampaigns, m.Optimizer.Cycles)
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Agent", "Status", "Load", "Errors", "Avg Response (ms)", "Active Leads", "Conversion"})
			for _, a := range m.Agents {
				perf := m.Performance[a.AgentID]
				tw.AppendRow(table.Row{a.AgentID, a.Status, fmt.Sprintf("%.2f", a.CurrentLoad), a.ErrorCount,
					fmt.Sprintf("%.0f", a.AverageResponseTime), a.ActiveLeads, fmt.Sprintf("%.1f%%", perf.ConversionRate*100)})
			}
			tw.Render()
			return nil
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print the system health score",
		RunE: func(cmd *cobra.Command, args []string) error {
			var h struct {
				Score  float64                 `json:"score"`
				Status supervisor.SystemStatus `json:"status"`
			}
			if err := client().get(cmd.Context(), "/v1/supervisor/health", &h); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(h)
			}
			fmt.Printf("%s %.3f\n", h.Status, h.Score)
			return nil
		},
	}
}

func alertsCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List open alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var alerts []models.SystemAlert
			if err := client().get(cmd.Context(), fmt.Sprintf("/v1/supervisor/alerts?all=%t", all), &alerts); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(alerts)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Severity", "Title", "Agent", "Created", "Ack"})
			for _, a := range alerts {
				ack := ""
				if a.Acknowledged {
					ack = a.AcknowledgedBy
				}
				tw.AppendRow(table.Row{a.ID, a.Severity, a.Title, a.AgentID, a.CreatedAt.Format(time.RFC3339), ack})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include acknowledged and resolved alerts")
	return cmd
}

func ackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ack <alert-id>",
		Short: "Acknowledge an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var a models.SystemAlert
			if err := client().post(cmd.Context(), "/v1/supervisor/alerts/"+args[0]+"/ack", nil, &a); err != nil {
				return err
			}
			return printJSONOrLine(a, fmt.Sprintf("acknowledged %s (%s)", a.ID, a.Title))
		},
	}
}

func overrideCmd() *cobra.Command {
	ov := &cobra.Command{Use: "override", Short: "Issue, cancel and list operator overrides"}
	ov.AddCommand(overrideIssueCmd())
	ov.AddCommand(overrideCancelCmd())
	ov.AddCommand(overrideListCmd())
	return ov
}

func overrideIssueCmd() *cobra.Command {
	var req supervisor.OverrideRequest
	var overrideType string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue an override (pause_agent, resume_agent, emergency_stop, priority_boost, redirect_leads)",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Type = models.OverrideType(overrideType)
			var o models.SystemOverride
			if err := client().post(cmd.Context(), "/v1/supervisor/overrides", req, &o); err != nil {
				return err
			}
			return printJSONOrLine(o, fmt.Sprintf("override %s issued: %s %s", o.ID, o.Type, o.TargetAgent))
		},
	}
	cmd.Flags().StringVar(&overrideType, "type", "", "override type")
	cmd.Flags().StringVar(&req.TargetAgent, "target", "", "target agent")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "reason recorded with the override")
	cmd.Flags().StringVar(&req.IssuedBy, "issued-by", os.Getenv("USER"), "operator name when no token subject applies")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func overrideCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <override-id>",
		Short: "Cancel an active override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var o models.SystemOverride
			if err := client().post(cmd.Context(), "/v1/supervisor/overrides/"+args[0]+"/cancel", nil, &o); err != nil {
				return err
			}
			return printJSONOrLine(o, fmt.Sprintf("override %s cancelled", o.ID))
		},
	}
}

func overrideListCmd() *cobra.Command {
	var active bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			var overrides []models.SystemOverride
			if err := client().get(cmd.Context(), fmt.Sprintf("/v1/supervisor/overrides?active=%t", active), &overrides); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(overrides)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Type", "Target", "Issued By", "Issued", "Active"})
			for _, o := range overrides {
				tw.AppendRow(table.Row{o.ID, o.Type, o.TargetAgent, o.IssuedBy, o.IssuedAt.Format(time.RFC3339), o.IsActive})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&active, "active", false, "only active overrides")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var file, rulesFile string
	var local bool
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Dry-run the routing decision for a lead JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var lead models.LeadSnapshot
			if err := json.Unmarshal(data, &lead); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			var decision models.RoutingDecision
			if local {
				decision, err = analyzeLocal(cmd.Context(), lead, rulesFile)
			} else {
				err = client().post(cmd.Context(), "/v1/leads/analyze", lead, &decision)
			}
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(decision)
			}
			fmt.Printf("lead %s -> %s (%s, ~%d min) rule=%q confidence=%.2f\n", decision.LeadID, decision.Action.Target,
				decision.Action.Priority, decision.Action.EstimatedResponseTime, decision.RuleID, decision.Confidence)
			for _, r := range decision.Reasoning {
				fmt.Println("  -", r)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "lead snapshot JSON file")
	cmd.Flags().BoolVar(&local, "local", false, "evaluate with an in-process rule engine instead of the service")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "YAML rules file for --local")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func analyzeLocal(ctx context.Context, lead models.LeadSnapshot, rulesFile string) (models.RoutingDecision, error) {
	cfg := routing.DefaultConfig()
	if rulesFile != "" {
		rf, err := routing.LoadRulesFile(rulesFile)
		if err != nil {
			return models.RoutingDecision{}, err
		}
		cfg = rf.Apply(cfg)
	}
	return routing.New(cfg, log.New(os.Stderr, "[routing] ", log.LstdFlags)).Analyze(ctx, lead)
}

func cycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run one optimization cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			var report optimizer.CycleReport
			if err := client().post(cmd.Context(), "/v1/optimizer/cycle", nil, &report); err != nil {
				return err
			}
			return printJSONOrLine(report, fmt.Sprintf("cycle took %s: %d recommendations, %d implemented, %d validated, %d rolled back, %d awaiting review",
				report.Duration, report.Recommendations, report.Implemented, report.Validated, report.RolledBack, report.AwaitingReview))
		},
	}
}

func tokenCmd() *cobra.Command {
	var subject string
	var roles []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token signed with LEADCTL_AUTH_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := auth.NewVerifier(auth.Config{Secret: viper.GetString("auth-secret"), Issuer: viper.GetString("auth-issuer")})
			if err != nil {
				return err
			}
			token, err := v.Issue(subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", os.Getenv("USER"), "token subject")
	cmd.Flags().StringSliceVar(&roles, "role", []string{auth.RoleOperator}, "roles to grant")
	cmd.Flags().DurationVar(&ttl, "ttl", 8*time.Hour, "token lifetime")
	cmd.Flags().String("auth-secret", "", "HMAC secret shared with the service")
	cmd.Flags().String("auth-issuer", auth.DefaultIssuer, "token issuer")
	_ = viper.BindPFlag("auth-secret", cmd.Flags().Lookup("auth-secret"))
	_ = viper.BindPFlag("auth-issuer", cmd.Flags().Lookup("auth-issuer"))
	return cmd
}

func printJSONOrLine(v interface{}, line string) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	fmt.Println(line)
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
