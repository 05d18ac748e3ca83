// Package cleaning turns raw webshop order lines into validated orders.
//
// Rules, applied in order:
//
//	- cancelled lines are dropped
//	- a missing return quantity means no return
//	- country FH is folded into DE, UNKNOWN is dropped, only DE, AT and CH are kept
//	- order number, line number and value must be numeric
//	- postal codes are trimmed; DE needs 5 characters, AT and CH need 4 not starting with 0
//	- values are rounded to whole euros and must be positive
//	- order_date must parse; year_quarter and year_month are derived from it
//
// Rejected lines are counted per rule in a Report and never fail the run.
package cleaning
