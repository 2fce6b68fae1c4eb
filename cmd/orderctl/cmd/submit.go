package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"orderflow/internal/models"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit an order to the submission queue",
	Long: `Submit places an order through the server queue and prints the ticker ledger record.

The order is read from --file (YAML, same fields as the API) or built from flags.

Example:
  orderctl submit --symbol AAPL --action BUY --size 10 --type LMT --param 10 --param 150.5
  orderctl submit --file exit.yaml --unique`,
	RunE: runSubmit,
}

var (
	subFile     string
	subSymbol   string
	subAction   string
	subSize     float64
	subType     string
	subParams   []float64
	subContract string
	subExpiry   string
	subStrike   float64
	subRight    string
	subCurrency string
	subExchange string
	subUnique   bool
)

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVarP(&subFile, "file", "f", "", "YAML file with the order request")
	submitCmd.Flags().StringVar(&subSymbol, "symbol", "", "instrument symbol")
	submitCmd.Flags().StringVar(&subAction, "action", string(models.ActionBuy), "BUY or SELL")
	submitCmd.Flags().Float64Var(&subSize, "size", 0, "order size")
	submitCmd.Flags().StringVar(&subType, "type", string(models.OrderTypeMarket), "order type (MKT, LMT, STP, STP LMT, TRAIL ...)")
	submitCmd.Flags().Float64SliceVar(&subParams, "param", nil, "positional order parameter, repeatable")
	submitCmd.Flags().StringVar(&subContract, "contract", string(models.ContractStock), "contract kind (STK, OPT, FUT, CASH ...)")
	submitCmd.Flags().StringVar(&subExpiry, "expiry", "", "contract expiry (options, futures)")
	submitCmd.Flags().Float64Var(&subStrike, "strike", 0, "option strike")
	submitCmd.Flags().StringVar(&subRight, "right", "", "option right (C or P)")
	submitCmd.Flags().StringVar(&subCurrency, "currency", "", "contract currency")
	submitCmd.Flags().StringVar(&subExchange, "exchange", "", "contract exchange")
	submitCmd.Flags().BoolVar(&subUnique, "unique", false, "reject if the symbol already has a pending or open order")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	req, err := submitRequest()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), reqTimeout)
	defer cancel()

	rec, err := newClient().Submit(ctx, req, subUnique)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, rec)
	}
	fmt.Fprintf(out, "submitted %s (ticker %d, status %s)\n", rec.Key, rec.TickerID, rec.Status)
	return nil
}

// submitRequest собирает запрос из файла или флагов
func submitRequest() (models.OrderRequest, error) {
	if subFile != "" {
		return loadOrderFile(subFile)
	}
	if subSymbol == "" {
		return models.OrderRequest{}, fmt.Errorf("--symbol or --file is required")
	}

	params := make([]interface{}, 0, len(subParams))
	for _, p := range subParams {
		params = append(params, p)
	}

	return models.OrderRequest{
		Symbol:     strings.ToUpper(subSymbol),
		Action:     models.Action(strings.ToUpper(subAction)),
		Size:       subSize,
		Type:       models.OrderType(strings.ToUpper(subType)),
		Parameters: params,
		Contract:   models.ContractKind(strings.ToUpper(subContract)),
		Expiry:     subExpiry,
		Strike:     subStrike,
		Right:      strings.ToUpper(subRight),
		Currency:   subCurrency,
		Exchange:   subExchange,
	}, nil
}

func loadOrderFile(path string) (models.OrderRequest, error) {
	var req models.OrderRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read order file: %w", err)
	}
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse order file: %w", err)
	}
	return req, nil
}
