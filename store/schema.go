package store

// Schema is applied on every open. Foreign keys are declared but not
// enforced; dangling rows surface as integrity warnings when joined.
const Schema = `
CREATE TABLE IF NOT EXISTS customers (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	industry TEXT NOT NULL,
	rating TEXT NOT NULL,
	founded_year INTEGER NOT NULL DEFAULT 0,
	creditworthiness REAL NOT NULL DEFAULT 0,
	region TEXT NOT NULL,
	risk_class TEXT NOT NULL,
	segment TEXT NOT NULL,
	revenue REAL NOT NULL DEFAULT 0,
	employees INTEGER NOT NULL DEFAULT 0,
	equity_ratio REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS contracts (
	id INTEGER PRIMARY KEY,
	customer_id INTEGER NOT NULL REFERENCES customers(id),
	product_type TEXT NOT NULL,
	originated_at DATE NOT NULL,
	term_months INTEGER NOT NULL,
	interest_rate REAL NOT NULL,
	currency TEXT NOT NULL DEFAULT 'EUR',
	credit_limit REAL NOT NULL,
	utilized_limit REAL NOT NULL,
	outstanding_balance REAL,
	collateral_value REAL NOT NULL DEFAULT 0,
	collateral_type TEXT NOT NULL DEFAULT '',
	borrower_score INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	next_due_date DATE,
	amortization_type TEXT NOT NULL DEFAULT '',
	pd REAL NOT NULL DEFAULT 0,
	lgd REAL NOT NULL DEFAULT 0,
	ead REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_contracts_customer ON contracts(customer_id);

CREATE TABLE IF NOT EXISTS payments (
	id INTEGER PRIMARY KEY,
	contract_id INTEGER NOT NULL REFERENCES contracts(id),
	due_date DATE NOT NULL,
	paid_at DATE,
	amount_due REAL NOT NULL,
	amount_paid REAL NOT NULL DEFAULT 0,
	days_late INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	dunning_level INTEGER NOT NULL DEFAULT 0,
	payment_type TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_payments_contract ON payments(contract_id, due_date);

CREATE TABLE IF NOT EXISTS default_events (
	id INTEGER PRIMARY KEY,
	contract_id INTEGER NOT NULL REFERENCES contracts(id),
	customer_id INTEGER NOT NULL REFERENCES customers(id),
	default_date DATE NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	defaulted_amount REAL NOT NULL,
	collateral_realized REAL NOT NULL DEFAULT 0,
	recovered_amount REAL NOT NULL DEFAULT 0,
	recovered_at DATE,
	write_off_amount REAL NOT NULL DEFAULT 0,
	written_off_at DATE,
	legal_status TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS economic_indicators (
	date DATE NOT NULL,
	region TEXT NOT NULL,
	industry TEXT NOT NULL DEFAULT '',
	industry_default_rate REAL NOT NULL DEFAULT 0,
	business_cycle_index REAL NOT NULL DEFAULT 0,
	unemployment_rate REAL NOT NULL DEFAULT 0,
	policy_rate REAL NOT NULL DEFAULT 0,
	inflation REAL NOT NULL DEFAULT 0,
	gdp_growth REAL NOT NULL DEFAULT 0,
	insolvency_rate REAL NOT NULL DEFAULT 0,
	credit_growth REAL NOT NULL DEFAULT 0,
	source TEXT NOT NULL DEFAULT '',
	UNIQUE (date, region, industry)
);

CREATE TABLE IF NOT EXISTS risk_limits (
	id INTEGER PRIMARY KEY,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	reference_id INTEGER NOT NULL DEFAULT 0,
	reference_value TEXT NOT NULL DEFAULT '',
	amount REAL NOT NULL,
	utilization REAL NOT NULL DEFAULT 0,
	utilization_pct REAL NOT NULL DEFAULT 0,
	breached INTEGER NOT NULL DEFAULT 0,
	breach_amount REAL NOT NULL DEFAULT 0,
	warning_pct REAL NOT NULL DEFAULT 80,
	critical_pct REAL NOT NULL DEFAULT 95,
	escalation_to TEXT NOT NULL DEFAULT '',
	escalated_at DATETIME,
	valid_from DATE,
	valid_to DATE,
	approved_by TEXT NOT NULL DEFAULT '',
	approved_at DATETIME
);

CREATE TABLE IF NOT EXISTS rating_changes (
	id TEXT PRIMARY KEY,
	customer_id INTEGER NOT NULL REFERENCES customers(id),
	old_rating TEXT NOT NULL,
	new_rating TEXT NOT NULL,
	changed_at DATETIME NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	handler TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_rating_changes_time ON rating_changes(changed_at);

CREATE TABLE IF NOT EXISTS provisions (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	contract_id INTEGER NOT NULL REFERENCES contracts(id),
	as_of DATE NOT NULL,
	stage INTEGER NOT NULL,
	ecl_12m REAL NOT NULL,
	ecl_lifetime REAL NOT NULL,
	pd_12m REAL NOT NULL,
	pd_lifetime REAL NOT NULL,
	lgd REAL NOT NULL,
	ead REAL NOT NULL,
	amount REAL NOT NULL,
	prior_amount REAL,
	delta REAL NOT NULL DEFAULT 0,
	UNIQUE (contract_id, as_of)
);
`
