package chat

import (
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Tool names exposed to the model. The prompt builder's tool inventory
// lists the same set.
const (
	ToolSearchProducts = "search_products"
	ToolSearchFaq      = "search_faq"
	ToolOrderStatus    = "order_status"
	ToolCreateHandoff  = "create_handoff_ticket"
)

// ToolNames lists every tool in declaration order.
var ToolNames = []string{ToolSearchProducts, ToolSearchFaq, ToolOrderStatus, ToolCreateHandoff}

type searchProductsInput struct {
	// Query is the customer need in their own words, e.g. "warm winter
	// jacket under 100 euros".
	Query string `json:"query"`
	// Limit is the requested result count. Zero or absent uses the
	// configured default; the retriever caps it at the configured maximum.
	Limit int `json:"limit,omitempty"`
}

type searchFaqInput struct {
	// Query is the store-related question to look up.
	Query string `json:"query"`
	// Limit is the requested result count. Zero or absent uses the
	// configured default; the retriever caps it at the configured maximum.
	Limit int `json:"limit,omitempty"`
}

type orderStatusInput struct {
	// OrderNumber as given by the customer.
	OrderNumber string `json:"order_number"`
}

type handoffInput struct {
	// Reason summarizes why the conversation needs a human.
	Reason string `json:"reason"`
	// CustomerEmail for the follow-up, if the customer provided one.
	CustomerEmail string `json:"customer_email,omitempty"`
}

// errExternallyDispatched guards the registered handlers. Generation always
// runs with tool requests returned to the engine, so genkit never invokes
// these directly; if one fires, the generate options are wrong.
var errExternallyDispatched = fmt.Errorf("tool calls are dispatched by the conversation engine")

// DefineTools registers the tool schemas on g and returns the refs to pass
// on generation calls. Only the schemas matter to the model; execution
// happens in Dispatcher.
func DefineTools(g *genkit.Genkit) []ai.ToolRef {
	return []ai.ToolRef{
		genkit.DefineTool(g, ToolSearchProducts,
			"Search the store's product catalog. Use for any question about what the store sells, product details, or comparisons.",
			func(ctx *ai.ToolContext, in searchProductsInput) (string, error) {
				return "", errExternallyDispatched
			}),
		genkit.DefineTool(g, ToolSearchFaq,
			"Search the store's knowledge base of verified answers about shipping, returns, payment, and policies.",
			func(ctx *ai.ToolContext, in searchFaqInput) (string, error) {
				return "", errExternallyDispatched
			}),
		genkit.DefineTool(g, ToolOrderStatus,
			"Look up the status of an existing order by its order number.",
			func(ctx *ai.ToolContext, in orderStatusInput) (string, error) {
				return "", errExternallyDispatched
			}),
		genkit.DefineTool(g, ToolCreateHandoff,
			"Create a support ticket so a human can follow up. Use when the customer needs something you cannot resolve.",
			func(ctx *ai.ToolContext, in handoffInput) (string, error) {
				return "", errExternallyDispatched
			}),
	}
}
