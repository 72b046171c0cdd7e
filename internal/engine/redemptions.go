package engine

import (
	"context"
	"fundbuilder/types"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

// RequestRedemption records a member's request to withdraw cash by
// surrendering units. The request is only stored; it settles at the next
// valuation run, once a unit price exists for the period.
//
// The member may differ from the calling user, so the caller must hold
// administrator rights, the member must belong to the account, the
// amount must be covered by available cash (balance in hand plus sale
// proceeds since the previous valuation), and the implied unit count
// must not exceed the member's holding. Any failure leaves no state
// behind.
func (e *Engine) RequestRedemption(token *types.UserToken, member string, amount decimal.Decimal, transactionDate time.Time, ctx context.Context) error {
	if err := token.Authorize(types.AuthAdministrator); err != nil {
		return err
	}

	log.Printf("redemption request from member %s on account %s for amount %s", member, token.Account, amount)

	previous, err := e.capital.PreviousValuationDate(token, transactionDate, ctx)
	if err != nil {
		return err
	}
	if previous == nil {
		return ErrNoPreviousValuation
	}

	members, err := e.capital.Members(token, *previous, ctx)
	if err != nil {
		return err
	}
	isMember := false
	for _, m := range members {
		if m == member {
			isMember = true
			break
		}
	}
	if !isMember {
		return ErrNotAMember
	}

	balance, err := e.cash.BalanceInHand(token, *previous, ctx)
	if err != nil {
		return err
	}
	trades, err := e.positions.TradesBetween(token, *previous, transactionDate, ctx)
	if err != nil {
		return err
	}
	if trades != nil {
		for _, sell := range trades.Sells {
			balance = balance.Add(sell.TotalCost)
		}
	}
	if amount.GreaterThan(balance) {
		return ErrInsufficientFunds
	}

	unitPrice, err := e.capital.UnitPrice(token, *previous, ctx)
	if err != nil {
		return err
	}
	if unitPrice.IsZero() {
		unitPrice = decimal.NewFromInt(1)
	}
	capital, err := e.capital.MemberCapital(token, *previous, ctx)
	if err != nil {
		return err
	}
	if amount.Div(unitPrice).GreaterThan(capital[member]) {
		return ErrExceedsHolding
	}

	return e.redemptions.AddRedemption(token, member, transactionDate, amount, ctx)
}

// Redemptions lists the redemption requests recorded since the valuation
// before date.
func (e *Engine) Redemptions(token *types.UserToken, date time.Time, ctx context.Context) ([]types.Redemption, error) {
	previous, err := e.capital.PreviousValuationDate(token, date, ctx)
	if err != nil {
		return nil, err
	}
	if previous == nil {
		return nil, nil
	}
	return e.redemptions.Redemptions(token, *previous, ctx)
}

// processRedemptions settles every non-failed redemption recorded since
// the previous valuation at the report's freshly computed unit price.
// Settling moves cash, so when anything settled the report is rebuilt
// from the updated bank balance; otherwise the original report is
// returned unchanged.
func (e *Engine) processRedemptions(token *types.UserToken, report *types.AssetReport, account *types.Account, previous time.Time, update bool, ctx context.Context) (*types.AssetReport, error) {
	redemptions, err := e.redemptions.Redemptions(token, previous, ctx)
	if err != nil {
		return nil, err
	}

	if !update {
		report.Redemptions = redemptions
		return report, nil
	}

	settled := false
	for i := range redemptions {
		redemption := &redemptions[i]
		if redemption.Status == types.RedemptionFailed {
			continue
		}

		log.Printf("processing redemption for member %s. amount requested %s", redemption.Member, redemption.Amount)

		// A collapsed account can value its units at zero; no cash can be
		// paid out against them, so the request stays pending.
		if !report.UnitPrice.IsPositive() {
			log.Printf("unit price is zero. leaving redemption for %s pending", redemption.Member)
			continue
		}

		capital, err := e.capital.MemberCapital(token, report.ValuationDate, ctx)
		if err != nil {
			return nil, err
		}
		memberUnits := capital[redemption.Member]

		requestedUnits := redemption.Amount.Div(report.UnitPrice)
		if requestedUnits.IsZero() {
			// An amount of zero is the reserved request to redeem the
			// member's whole holding. Round the amount down so the club
			// keeps any rounding remainder.
			requestedUnits = memberUnits
			redemption.Amount = requestedUnits.Mul(report.UnitPrice).Floor()
			log.Printf("redeeming full holding for %s. amount redeemed %s", redemption.Member, redemption.Amount)
		} else {
			redemption.Amount, requestedUnits = reduceToFit(redemption.Amount, report.UnitPrice, memberUnits)
		}

		// Dust cleanup: a residual holding under one unit drops to zero.
		newMemberUnits := memberUnits.Sub(requestedUnits)
		if newMemberUnits.LessThan(decimal.NewFromInt(1)) {
			newMemberUnits = decimal.Zero
		}

		if err := e.capital.SetMemberCapital(token, report.ValuationDate, redemption.Member, newMemberUnits, ctx); err != nil {
			return nil, err
		}
		if _, err := e.AddTransaction(token, report.ValuationDate, report.ValuationDate, types.TxRedemption, redemption.Member, redemption.Amount, ctx); err != nil {
			return nil, err
		}
		// Compensating entry so the next period's carried-forward balance
		// reflects the payout.
		if _, err := e.AddTransaction(token, report.ValuationDate, report.ValuationDate, types.TxBalanceInHandCF, types.TxBalanceInHandCF, redemption.Amount.Neg(), ctx); err != nil {
			return nil, err
		}

		log.Printf("redemption for member %s complete. units sold %s, units remaining %s", redemption.Member, requestedUnits, newMemberUnits)

		redemption.RedeemedUnits = requestedUnits
		status, err := e.redemptions.UpdateRedemption(token, redemption.Member, redemption.TransactionDate, redemption.Amount, requestedUnits, ctx)
		if err != nil {
			return nil, err
		}
		redemption.Status = status
		settled = true
	}

	if settled {
		cashData, err := e.cash.CashBalance(token, report.ValuationDate, ctx)
		if err != nil {
			return nil, err
		}
		newReport, err := e.buildReport(token, report.ValuationDate, nil, account, report.Assets, cashData.BankBalance, false, ctx)
		if err != nil {
			return nil, err
		}
		newReport.Redemptions = redemptions
		return newReport, nil
	}
	return report, nil
}

// rollbackRedemptions reverses the cash effect of redemptions already
// settled since the previous valuation, so a rerun of the period does not
// subtract their amounts twice.
func (e *Engine) rollbackRedemptions(token *types.UserToken, valuationDate, previous time.Time, ctx context.Context) error {
	redemptions, err := e.redemptions.Redemptions(token, previous, ctx)
	if err != nil {
		return err
	}
	for _, redemption := range redemptions {
		if redemption.Status != types.RedemptionComplete {
			continue
		}
		if _, err := e.AddTransaction(token, valuationDate, redemption.TransactionDate, types.TxBalanceInHandCF, types.TxBalanceInHandCF, redemption.Amount, ctx); err != nil {
			return err
		}
	}
	return nil
}

// reduceToFit shrinks a requested redemption amount until the units it
// buys at unitPrice fit within maxUnits, decrementing one currency unit
// at a time. The reduction is monotonic and never increases the amount;
// it returns the final amount and its unit count.
func reduceToFit(amount, unitPrice, maxUnits decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if !unitPrice.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	one := decimal.NewFromInt(1)
	units := amount.Div(unitPrice)
	for units.GreaterThan(maxUnits) {
		amount = amount.Sub(one)
		units = amount.Div(unitPrice)
	}
	return amount, units
}
