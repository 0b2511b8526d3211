package models

// Principal is the authenticated actor behind a request. Exactly one of
// InvestorPrincipal, CompanyPrincipal or AnalystPrincipal.
type Principal interface {
	Account() *User
	isPrincipal()
}

type InvestorPrincipal struct {
	User     *User
	Investor *InvestorUser
}

type CompanyPrincipal struct {
	User        *User
	CompanyUser *CompanyUser
}

type AnalystPrincipal struct {
	User    *User
	Analyst *AnalystUser
}

func (p *InvestorPrincipal) Account() *User { return p.User }
func (p *CompanyPrincipal) Account() *User  { return p.User }
func (p *AnalystPrincipal) Account() *User  { return p.User }

func (*InvestorPrincipal) isPrincipal() {}
func (*CompanyPrincipal) isPrincipal()  {}
func (*AnalystPrincipal) isPrincipal()  {}
