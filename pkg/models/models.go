package models

/*
Predix Engine Database Models

This package contains all database models organized by domain:

- user.go   - User and Balance models (ledger accounts)
- market.go - Market and MarketTotals journal models
- bet.go    - UserBet and Admin journal models, EngineState
- utils.go  - Shared utility functions

The market/bet/admin tables are a write-behind journal of the in-memory
settlement engine: the engine is authoritative at runtime and the journal is
replayed into it at startup. Balances are authoritative in the database and
accessed only through the ledger adapter.

To add new models:
1. Create a new file for your domain (e.g., treasury.go)
2. Define your models with appropriate GORM tags
3. Add TableName() methods if needed
4. Include the models in database.AutoMigrate()
*/
