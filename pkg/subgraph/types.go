package subgraph

// GraphQL documents for the token holder transaction subgraph. The
// transactions query is bounded by [startDate, finishDate) and paginated via
// skip/count; the source caps a page at 1000 records.
const (
	transactionsQuery = `query ($count: Int!, $skip: Int!, $startDate: String!, $finishDate: String!) {
  tokenHolderTransactions(
    first: $count
    skip: $skip
    where: { date_gte: $startDate, date_lt: $finishDate }
    orderBy: date
    orderDirection: asc
  ) {
    id
    value
    date
    transaction
    holder {
      holder
      token {
        name
        blockchain
      }
    }
  }
}`

	latestTransactionQuery = `query {
  tokenHolderTransactions(first: 1, orderBy: date, orderDirection: desc) {
    date
  }
}`

	earliestTransactionQuery = `query {
  tokenHolderTransactions(first: 1, orderBy: date, orderDirection: asc) {
    date
  }
}`
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type transactionsResponse struct {
	Data struct {
		TokenHolderTransactions []wireTransaction `json:"tokenHolderTransactions"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// wireTransaction mirrors the subgraph's nested record shape.
type wireTransaction struct {
	ID          string `json:"id"`
	Value       string `json:"value"`
	Date        string `json:"date"`
	Transaction string `json:"transaction"`
	Holder      struct {
		Holder string `json:"holder"`
		Token  struct {
			Name       string `json:"name"`
			Blockchain string `json:"blockchain"`
		} `json:"token"`
	} `json:"holder"`
}
