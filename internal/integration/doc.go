// Package integration runs txsubmit against a real Solana cluster.
//
// The tests skip themselves when no node answers, so they are safe in CI:
//
//	go test -short ./...
//
// Against a local validator with the tradelink program deployed, plus a
// program that has a no-argument initialize handler (the anchor init
// scaffold) for the initialize and pipeline tests:
//
//	solana-test-validator \
//	  --bpf-program S4Zy9tboDLQ8Qj8UxhcSFc9z4K4GrYzUyDVenbKyr3Z tradelink.so \
//	  --bpf-program <scaffold-id> scaffold.so
//	INIT_PROGRAM_ID=<scaffold-id> go test ./internal/integration/...
//
// Tradelink declares no initialize handler: the tests expect that call to
// fail with Anchor's InstructionFallbackNotFound (101) and confirm a buy
// against a freshly minted token instead.
//
// # Environment Variables
//
//   - RPC_URL: JSON-RPC endpoint (default: http://127.0.0.1:8899)
//   - WS_URL: websocket endpoint (default: derived from RPC_URL)
//   - PROGRAM_ID: tradelink program address (default: S4Zy9tbo...)
//   - INIT_PROGRAM_ID: program with an initialize handler (tests skip when unset)
//
// Tests that need lamports fund a fresh key with requestAirdrop, so the
// cluster must serve a faucet. Tests that invoke the program skip when the
// program account does not exist.
package integration
