package gateway

import (
	"strings"

	"orderflow/internal/models"
)

// Биржи и валюта по умолчанию для дескрипторов инструментов
const (
	DefaultExchange        = "SMART"
	DefaultCurrency        = "USD"
	DefaultForexExchange   = "IDEALPRO"
	DefaultFutureExchange  = "GLOBEX"
	DefaultIndexExchange   = "CBOE"
	DefaultOptionMultipler = "100"
)

// BuildContract строит дескриптор инструмента по типу контракта из запроса.
// Неизвестный или пустой тип трактуется как акция.
func BuildContract(req models.OrderRequest) models.Contract {
	c := models.Contract{
		Symbol:   req.Symbol,
		SecType:  normalizeKind(req.Contract),
		Exchange: DefaultExchange,
		Currency: DefaultCurrency,
	}

	switch c.SecType {
	case models.ContractForex:
		c.Exchange = DefaultForexExchange
	case models.ContractIndex:
		c.Exchange = DefaultIndexExchange
	case models.ContractOption:
		c.Expiry = req.Expiry
		c.Strike = req.Strike
		c.Right = normalizeRight(req.Right)
		c.Multiplier = DefaultOptionMultipler
	case models.ContractFuture:
		c.Exchange = DefaultFutureExchange
		c.Expiry = req.Expiry
	case models.ContractFOP:
		c.Exchange = DefaultFutureExchange
		c.Expiry = req.Expiry
		c.Strike = req.Strike
		c.Right = normalizeRight(req.Right)
	}

	// явные значения из запроса имеют приоритет
	if req.Exchange != "" {
		c.Exchange = req.Exchange
	}
	if req.Currency != "" {
		c.Currency = req.Currency
	}

	return c
}

func normalizeKind(kind models.ContractKind) models.ContractKind {
	switch models.ContractKind(strings.ToUpper(string(kind))) {
	case models.ContractStock, "":
		return models.ContractStock
	case models.ContractOption:
		return models.ContractOption
	case models.ContractFuture:
		return models.ContractFuture
	case models.ContractForex, "FOREX":
		return models.ContractForex
	case models.ContractCFD:
		return models.ContractCFD
	case models.ContractCombo, "COMBO":
		return models.ContractCombo
	case models.ContractIndex:
		return models.ContractIndex
	case models.ContractFOP:
		return models.ContractFOP
	default:
		return models.ContractStock
	}
}

func normalizeRight(right string) string {
	switch strings.ToUpper(right) {
	case "C", "CALL":
		return "C"
	case "P", "PUT":
		return "P"
	default:
		return right
	}
}
