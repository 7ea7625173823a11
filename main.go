package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/resolvehq/resolve/agent/contract"
	historyx "github.com/resolvehq/resolve/agent/history"
	orchestratorx "github.com/resolvehq/resolve/agent/orchestrator"
	policyx "github.com/resolvehq/resolve/agent/policy"
	redactx "github.com/resolvehq/resolve/agent/redact"
	ticketx "github.com/resolvehq/resolve/agent/ticket"
	toolx "github.com/resolvehq/resolve/agent/tool"
	configx "github.com/resolvehq/resolve/pkg/config"
	logx "github.com/resolvehq/resolve/pkg/logger"
	openrouterx "github.com/resolvehq/resolve/pkg/openrouter"
)

const quitCommand = "quit"

type AppConfig struct {
	DBPath string `envconfig:"DB_PATH" default:"support.db"`
}

func main() {
	logCfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*logCfg)

	appCfg := configx.MustNew[AppConfig]("")
	modelCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
	chatModel := openrouterx.MustNewChatModel(*modelCfg)

	ctx := context.Background()

	store, err := historyx.Open(ctx, historyx.Config{Path: appCfg.DBPath})
	if err != nil {
		log.Fatal().Err(err).Msg("history store unavailable")
	}
	defer store.Close()

	gateway := toolx.NewGateway(policyx.NewIndex(), ticketx.NewRegistry(), store)

	orch, err := orchestratorx.New(store, chatModel, gateway, orchestratorx.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("orchestrator init failed")
	}

	runConsole(ctx, orch, store)
}

func runConsole(ctx context.Context, orch *orchestratorx.Orchestrator, store *historyx.Store) {
	in := bufio.NewScanner(os.Stdin)

	fmt.Println("Welcome! Please enter your information to begin.")
	customer, ok := readCustomer(ctx, in, store)
	if !ok {
		return
	}

	if err := store.UpsertCustomer(ctx, customer); err != nil {
		log.Fatal().Err(err).Msg("could not register customer")
	}

	fmt.Printf("\nChat started. Type %q to exit.\n", quitCommand)
	for {
		fmt.Print("\nYou: ")
		if !in.Scan() {
			return
		}
		text := strings.TrimSpace(in.Text())
		if strings.EqualFold(text, quitCommand) {
			fmt.Println("Goodbye!")
			return
		}
		if text == "" {
			fmt.Println("Please type a message.")
			continue
		}

		out, err := orch.HandleMessage(ctx, customer, text)
		if err != nil {
			log.Error().Err(err).Msg("turn failed")
			fmt.Println("Assistant: Sorry, something went wrong. Please try again.")
			continue
		}
		fmt.Printf("Assistant: %s\n", out.Reply)
		if out.Warning != "" {
			fmt.Printf("(%s)\n", out.Warning)
		}
	}
}

func readCustomer(ctx context.Context, in *bufio.Scanner, store *historyx.Store) (contractx.Customer, bool) {
	fmt.Print("Your Name: ")
	if !in.Scan() {
		return contractx.Customer{}, false
	}
	name := strings.TrimSpace(in.Text())

	for {
		fmt.Print("Your Email: ")
		if !in.Scan() {
			return contractx.Customer{}, false
		}
		email := strings.TrimSpace(in.Text())
		if !redactx.IsEmailAddress(email) {
			fmt.Println("Please enter a valid email address.")
			continue
		}

		customer := contractx.Customer{Name: name, Email: strings.ToLower(email)}
		if known, err := store.Customer(ctx, customer.Email); err == nil {
			fmt.Printf("Welcome back, %s!\n", known.Name)
		} else if !errors.Is(err, historyx.ErrCustomerNotFound) {
			log.Warn().Err(err).Msg("customer lookup failed")
		}
		return customer, true
	}
}
