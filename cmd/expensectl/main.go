package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	apiclient "github.com/splax/expensetracker/pkg/api/client"
)

var buildVersion = "dev"

const requestTimeout = 15 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "register":
		err = commandRegister(args)
	case "login":
		err = commandLogin(args)
	case "logout":
		err = commandLogout()
	case "list", "ls":
		err = commandList(args)
	case "add":
		err = commandAdd(args)
	case "show":
		err = commandShow(args)
	case "delete", "rm":
		err = commandDelete(args)
	case "summary":
		err = commandSummary(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		if apiclient.IsUnauthenticated(err) {
			err = errors.New("session expired or invalid; run 'expensectl login' again")
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	username := fs.String("username", "", "Display name")
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPIBaseURL+")")
	fs.Parse(args)

	if strings.TrimSpace(*username) == "" || strings.TrimSpace(*email) == "" {
		return errors.New("--username and --email are required")
	}
	secret, err := readSecret(*password)
	if err != nil {
		return err
	}
	cfg, client, err := anonymousClient(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	resp, err := client.Register(ctx, *username, *email, secret)
	if err != nil {
		return err
	}
	if err := saveConfig(withSession(cfg, resp)); err != nil {
		return err
	}
	fmt.Printf("registered as %s <%s>\n", resp.User.Username, resp.User.Email)
	return nil
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPIBaseURL+")")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readSecret(*password)
	if err != nil {
		return err
	}
	cfg, client, err := anonymousClient(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	resp, err := client.Login(ctx, *email, secret)
	if err != nil {
		return err
	}
	if err := saveConfig(withSession(cfg, resp)); err != nil {
		return err
	}
	fmt.Println("login successful")
	return nil
}

func commandLogout() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := saveConfig(cliConfig{APIBaseURL: cfg.APIBaseURL}); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func commandList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	category := fs.String("category", "", "Only show this category")
	sortKey := fs.String("sort", "", "Sort by date|amount|title|category|created_at; prefix with - for descending")
	fs.Parse(args)

	client, err := sessionClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	expenses, err := client.ListExpenses(ctx, apiclient.ListOptions{Category: *category, Sort: *sortKey})
	if err != nil {
		return err
	}
	if len(expenses) == 0 {
		fmt.Println("no expenses found")
		return nil
	}
	return printExpenses(os.Stdout, expenses)
}

func commandAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	title := fs.String("title", "", "Expense title")
	amount := fs.String("amount", "", "Amount spent")
	category := fs.String("category", "", "Food|Transport|Entertainment|Bills|Other (default Other)")
	date := fs.String("date", "", "Date as YYYY-MM-DD or RFC3339 (default now)")
	description := fs.String("description", "", "Optional notes")
	fs.Parse(args)

	if strings.TrimSpace(*title) == "" || strings.TrimSpace(*amount) == "" {
		return errors.New("--title and --amount are required")
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(*amount), 64)
	if err != nil {
		return fmt.Errorf("--amount must be a number: %w", err)
	}
	client, err := sessionClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	created, err := client.CreateExpense(ctx, apiclient.NewExpense{
		Title:       *title,
		Amount:      value,
		Category:    *category,
		Date:        *date,
		Description: *description,
	})
	if err != nil {
		return err
	}
	fmt.Printf("expense %s created\n", created.ID)
	return nil
}

func commandShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	id := fs.String("id", "", "Expense identifier")
	fs.Parse(args)
	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}
	client, err := sessionClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	expense, err := client.GetExpense(ctx, *id)
	if err != nil {
		return err
	}
	return printExpenses(os.Stdout, []apiclient.Expense{*expense})
}

func commandDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.String("id", "", "Expense identifier")
	fs.Parse(args)
	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}
	client, err := sessionClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	deleted, err := client.DeleteExpense(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Printf("expense %q deleted\n", deleted.Title)
	return nil
}

func commandSummary(args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	month := fs.String("month", "", "Restrict to a month (YYYY-MM)")
	fs.Parse(args)

	client, err := sessionClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	summary, err := client.Summary(ctx, *month)
	if err != nil {
		return err
	}
	return printSummary(os.Stdout, summary)
}

func readSecret(flagValue string) (string, error) {
	if secret := strings.TrimSpace(flagValue); secret != "" {
		return secret, nil
	}
	fmt.Print("Password: ")
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(bytes), nil
}

func anonymousClient(apiBase string) (cliConfig, *apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cliConfig{}, nil, err
	}
	if strings.TrimSpace(apiBase) != "" {
		cfg.APIBaseURL = apiBase
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return cliConfig{}, nil, err
	}
	cfg.APIBaseURL = client.BaseURL()
	return cfg, client, nil
}

func sessionClient() (*apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.loggedIn() {
		return nil, errors.New("please login first using 'expensectl login'")
	}
	return apiclient.New(cfg.APIBaseURL, apiclient.WithToken(cfg.AccessToken))
}

func withSession(cfg cliConfig, resp *apiclient.AuthResponse) cliConfig {
	cfg.AccessToken = resp.Token
	cfg.UserID = resp.User.ID
	cfg.Username = resp.User.Username
	cfg.Email = resp.User.Email
	return cfg
}

func printExpenses(w io.Writer, expenses []apiclient.Expense) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tAMOUNT\tTITLE")
	for _, e := range expenses {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", e.ID, e.Date.UTC().Format(time.DateOnly), e.Category, e.Amount, e.Title)
	}
	return tw.Flush()
}

func printSummary(w io.Writer, s *apiclient.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if s.Month != "" {
		fmt.Fprintf(tw, "Month:\t%s\n", s.Month)
	}
	fmt.Fprintf(tw, "Expenses:\t%d\n", s.Count)
	fmt.Fprintf(tw, "Total:\t%.2f\n", s.Total)
	fmt.Fprintf(tw, "Average:\t%.2f\n", s.Average)
	if s.TopCategory != "" {
		fmt.Fprintf(tw, "Top category:\t%s\n", s.TopCategory)
	}
	for _, c := range s.ByCategory {
		fmt.Fprintf(tw, "  %s\t%.2f\t(%d)\n", c.Category, c.Total, c.Count)
	}
	return tw.Flush()
}

func printUsage() {
	fmt.Printf("expensectl %s\n\n", buildVersion)
	fmt.Print(`Usage:
	expensectl register --username alice --email alice@example.com [--password secret] [--api http://localhost:3000]
	expensectl login --email alice@example.com [--password secret] [--api http://localhost:3000]
	expensectl list [--category Food] [--sort -amount]
	expensectl add --title Lunch --amount 12.50 [--category Food] [--date 2025-01-31] [--description notes]
	expensectl show --id <expense-id>
	expensectl delete --id <expense-id>
	expensectl summary [--month 2025-01]
	expensectl logout
	expensectl version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
