// Package sales records sales atomically and answers the sales queries.
//
// Record validates the whole sale before opening a transaction, then writes
// the header, every line item and every stock decrement in one transaction. On
// any failure the transaction is rolled back and the store is exactly as
// before.
//
// Validation order is fixed and short-circuits on the first failure:
//
//  1. the sale has at least one item
//  2. quantities are positive, prices non-negative, payment type known
//  3. every product exists
//  4. every product is active
//  5. quantities, summed per product, fit in stock
//
// Stock is decremented with a guarded UPDATE (stock >= qty), so a decrement
// that would go negative fails the sale even if stock changed after step 5.
package sales
