package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexkalak/go_arena_market/common/core/quotefetcher"
	"github.com/alexkalak/go_arena_market/common/core/quoter"
	"github.com/alexkalak/go_arena_market/common/external/rpcclient"
	"github.com/alexkalak/go_arena_market/common/helpers/envhelper"
	"github.com/alexkalak/go_arena_market/common/helpers/logger"
	"github.com/alexkalak/go_arena_market/common/models"
	"github.com/alexkalak/go_arena_market/services/quotecli/src/amountinput"
	"github.com/ethereum/go-ethereum/common"
)

func main() {
	tokenIn := flag.String("tokenIn", "", "Address of the token sold")
	tokenOut := flag.String("tokenOut", "", "Address of the token bought")
	fee := flag.Uint("fee", uint(models.DEFAULT_FEE_TIER), "Pool fee in hundredths of a bip")
	decimalsIn := flag.Int("decimalsIn", 18, "Decimals of tokenIn")
	decimalsOut := flag.Int("decimalsOut", 18, "Decimals of tokenOut")
	flag.Parse()

	env, err := envhelper.GetEnv()
	if err != nil {
		panic(err)
	}

	log := logger.New(env.LOG_LEVEL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rpcClient, err := rpcclient.NewRpcClient(ctx, rpcclient.RpcClientConfig{
		RPCUrl: env.ETH_MAINNET_RPC_HTTP,
	}, rpcclient.RpcClientDependencies{})
	if err != nil {
		panic(err)
	}
	defer rpcClient.Close()

	quoterService, err := quoter.New(quoter.QuoterConfig{
		QuoterAddress: common.HexToAddress(env.QUOTER_ADDRESS),
	}, quoter.QuoterDependencies{
		ContractReader: rpcClient,
		Logger:         &log,
	})
	if err != nil {
		panic(err)
	}

	fetcher, err := quotefetcher.New(quotefetcher.QuoteFetcherConfig{
		ChainID: env.CHAIN_ID,
		Pair:    models.NewAssetPair(*tokenIn, *tokenOut, uint32(*fee)),
	}, quotefetcher.QuoteFetcherDependencies{
		Quoter: quoterService,
		Logger: &log,
	})
	if err != nil {
		panic(err)
	}
	defer fetcher.Close()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case state, ok := <-fetcher.Updates():
				if !ok {
					return
				}
				printState(state, int32(*decimalsIn), int32(*decimalsOut))
			}
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Println("enter amounts of tokenIn, one per line")
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}

			amount, err := amountinput.ParseAmount(line, int32(*decimalsIn))
			if err != nil {
				fmt.Println(err)
				continue
			}
			fetcher.SetAmount(amount)
		}
	}
}

func printState(state quotefetcher.State, decimalsIn, decimalsOut int32) {
	switch {
	case !state.Enabled:
		fmt.Println("quote disabled")
	case state.Loading:
		fmt.Printf("quoting %s...\n", amountinput.FormatAmount(state.CommittedAmount, decimalsIn))
	case state.Error != "":
		fmt.Println(state.Error)
	default:
		fmt.Printf("%s -> %s\n",
			amountinput.FormatAmount(state.CommittedAmount, decimalsIn),
			amountinput.FormatAmount(state.AmountOut, decimalsOut),
		)
	}
}
