/*
Copyright 2025 Tally Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// reconcileCommands checks an account's balance against the signed sum of
// its ledger entries. Mostly useful for spotting partial writes left behind
// by best_effort deployments.
func reconcileCommands(t *tallyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile <account-id>",
		Short: "compare an account balance against its ledger entries",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			result, err := t.tally.ReconcileAccount(context.Background(), args[0])
			if err != nil {
				log.Printf("Error reconciling account: %v", err)
				return
			}

			if result.InSync {
				fmt.Printf("account %s in sync: balance %s matches ledger\n", result.AccountID, result.Balance)
				return
			}
			fmt.Printf("account %s OUT OF SYNC: balance %s, ledger sum %s, drift %s\n",
				result.AccountID, result.Balance, result.LedgerSum, result.Drift)
		},
	}
	return cmd
}
