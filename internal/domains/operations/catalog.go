package operations

const (
	ServiceFullNode  = "full_node"
	ServiceWallet    = "wallet"
	ServiceDataLayer = "data_layer"
)

const defaultWalletID int64 = 1

func walletIDParam() Param {
	return Param{
		Name:        "wallet_id",
		Type:        ParamInteger,
		Description: "Wallet id; 1 is the standard XCH wallet.",
		Default:     defaultWalletID,
	}
}

func storeIDParam() Param {
	return Param{Name: "id", Type: ParamString, Description: "DataLayer store id (hex).", Required: true}
}

func rootHashParam() Param {
	return Param{Name: "root_hash", Type: ParamString, Description: "Optional root hash to read at (hex)."}
}

// Catalog returns the operations exposed by the gateway, in tools/list order.
// Handlers are left nil; Build binds them to a Dispatcher.
func Catalog() []Operation {
	return []Operation{
		// full_node
		{
			Name:        "get_blockchain_state",
			Service:     ServiceFullNode,
			Description: "Get the current state of the blockchain: peak, sync status, difficulty and mempool size.",
		},
		{
			Name:        "get_network_info",
			Service:     ServiceFullNode,
			Description: "Get the network name and address prefix of the full node.",
		},
		{
			Name:        "get_block_record_by_height",
			Service:     ServiceFullNode,
			Description: "Get the block record at a height on the main chain.",
			Params: []Param{
				{Name: "height", Type: ParamInteger, Description: "Block height.", Required: true},
			},
		},
		{
			Name:        "get_block_record",
			Service:     ServiceFullNode,
			Description: "Get a block record by header hash.",
			Params: []Param{
				{Name: "header_hash", Type: ParamString, Description: "Header hash (hex).", Required: true},
			},
		},
		{
			Name:        "get_block",
			Service:     ServiceFullNode,
			Description: "Get a full block by header hash.",
			Params: []Param{
				{Name: "header_hash", Type: ParamString, Description: "Header hash (hex).", Required: true},
			},
		},
		{
			Name:        "get_additions_and_removals",
			Service:     ServiceFullNode,
			Description: "Get the coins created and spent in a block.",
			Params: []Param{
				{Name: "header_hash", Type: ParamString, Description: "Header hash (hex).", Required: true},
			},
		},
		{
			Name:        "get_coin_record_by_name",
			Service:     ServiceFullNode,
			Description: "Get a coin record by coin id.",
			Params: []Param{
				{Name: "name", Type: ParamString, Description: "Coin id (hex).", Required: true},
			},
		},
		{
			Name:        "get_coin_records_by_puzzle_hash",
			Service:     ServiceFullNode,
			Description: "Get coin records locked by a puzzle hash.",
			Params: []Param{
				{Name: "puzzle_hash", Type: ParamString, Description: "Puzzle hash (hex).", Required: true},
				{Name: "include_spent_coins", Type: ParamBoolean, Description: "Include spent coins.", Default: false},
				{Name: "start_height", Type: ParamInteger, Description: "Lowest confirmation height."},
				{Name: "end_height", Type: ParamInteger, Description: "Highest confirmation height."},
			},
		},
		{
			Name:        "get_all_mempool_tx_ids",
			Service:     ServiceFullNode,
			Description: "List the transaction ids currently in the mempool.",
		},
		{
			Name:        "get_mempool_item_by_tx_id",
			Service:     ServiceFullNode,
			Description: "Get a mempool item by transaction id.",
			Params: []Param{
				{Name: "tx_id", Type: ParamString, Description: "Transaction id (hex).", Required: true},
			},
		},

		// wallet
		{
			Name:        "get_wallets",
			Service:     ServiceWallet,
			Description: "List the wallets of the logged-in key.",
			Params: []Param{
				{Name: "include_data", Type: ParamBoolean, Description: "Include wallet data blobs.", Default: true},
			},
		},
		{
			Name:        "get_wallet_balance",
			Service:     ServiceWallet,
			Description: "Get the balance of a wallet.",
			Params:      []Param{walletIDParam()},
		},
		{
			Name:        "get_sync_status",
			Service:     ServiceWallet,
			Description: "Get the wallet sync status.",
		},
		{
			Name:        "get_height_info",
			Service:     ServiceWallet,
			Description: "Get the height the wallet is synced to.",
		},
		{
			Name:        "get_transactions",
			Service:     ServiceWallet,
			Description: "List transactions of a wallet.",
			Params: []Param{
				walletIDParam(),
				{Name: "start", Type: ParamInteger, Description: "Offset of the first transaction."},
				{Name: "end", Type: ParamInteger, Description: "Offset after the last transaction."},
			},
		},
		{
			Name:        "get_next_address",
			Service:     ServiceWallet,
			Description: "Get a receive address for a wallet.",
			Params: []Param{
				walletIDParam(),
				{Name: "new_address", Type: ParamBoolean, Description: "Derive a fresh address.", Default: false},
			},
		},
		{
			Name:        "get_logged_in_fingerprint",
			Service:     ServiceWallet,
			Description: "Get the fingerprint of the logged-in key.",
		},
		{
			Name:        "get_public_keys",
			Service:     ServiceWallet,
			Description: "List the fingerprints of keys known to the wallet.",
		},
		{
			Name:        "generate_mnemonic",
			Service:     ServiceWallet,
			Description: "Ask the wallet to generate a new 24-word mnemonic. Nothing is stored.",
		},

		// data_layer
		{
			Name:        "dl_get_owned_stores",
			Service:     ServiceDataLayer,
			Endpoint:    "get_owned_stores",
			Description: "List the DataLayer stores owned by this node.",
		},
		{
			Name:        "dl_get_keys",
			Service:     ServiceDataLayer,
			Endpoint:    "get_keys",
			Description: "List the keys of a DataLayer store.",
			Params:      []Param{storeIDParam(), rootHashParam()},
		},
		{
			Name:        "dl_get_value",
			Service:     ServiceDataLayer,
			Endpoint:    "get_value",
			Description: "Get the value of a key in a DataLayer store.",
			Params: []Param{
				storeIDParam(),
				{Name: "key", Type: ParamString, Description: "Key (hex).", Required: true},
				rootHashParam(),
			},
		},
		{
			Name:        "dl_get_root",
			Service:     ServiceDataLayer,
			Endpoint:    "get_root",
			Description: "Get the current root hash of a DataLayer store.",
			Params:      []Param{storeIDParam()},
		},
		{
			Name:        "dl_get_sync_status",
			Service:     ServiceDataLayer,
			Endpoint:    "get_sync_status",
			Description: "Get the sync status of a subscribed DataLayer store.",
			Params:      []Param{storeIDParam()},
		},
	}
}
