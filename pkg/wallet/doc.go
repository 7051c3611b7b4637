// Package wallet is the entry point of the walletmesh storage subsystem.
//
// A Context owns a type registry, a handle table and a wallet catalog. It
// comes with the built-in "default" (Badger) and "sqlite" types registered;
// further types, including callback-table plugins, are added with
// RegisterType before any wallet of that type is created or opened.
//
//	wc, err := wallet.New(wallet.Options{DataDir: dir})
//	if err != nil {
//		return err
//	}
//	defer wc.Close(ctx)
//
//	err = wc.CreateWallet(ctx, &wallet.CreateWalletRequest{PoolName: "pool1", Name: "alice"})
//	h, err := wc.OpenWallet(ctx, &wallet.OpenWalletRequest{Name: "alice"})
//	err = wc.Set(ctx, h, "did::1", value)
//	err = wc.CloseWallet(ctx, h)
package wallet
