// Package harness runs scripted inventory scenarios end to end.
//
// A scenario seeds a catalog, performs a flow of sales and catalog edits
// through the real services, and checks the final state. Each run uses a
// fresh store file and a step clock, so its trace is reproducible and can be
// compared against a golden file.
//
// # Scenario Format
//
//	name: sale_two_items
//	description: "Two lipsticks at 12.50 make a 25.00 sale"
//	setup:
//	  categories: [Lips]
//	  products:
//	    - key: lipstick
//	      name: Lipstick
//	      category: Lips
//	      stock: 10
//	      price: "12.50"
//	flow:
//	  - action: record_sale
//	    ref: first
//	    sale:
//	      customer: Ana
//	      items:
//	        - product: lipstick
//	          quantity: 2
//	    expect:
//	      outcome: OK
//	      total: "25.00"
//	assertions:
//	  - type: stock
//	    product: lipstick
//	    equals: "8"
//
// Prices are always quoted strings. Flow actions are record_sale,
// delete_sale, delete_product, set_stock and rename_product. An expected
// outcome is OK or an error code such as INSUFFICIENT_STOCK.
//
// # Assertion Types
//
//   - stock: current stock of a product
//   - product_active: whether a product is still sellable
//   - row_count: number of rows in a table
//   - outcome_count: flow steps with the given action and outcome
//   - revenue: total of today's sales
package harness
