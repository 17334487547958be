// Collect
//
// Collect lists every file below a root directory concurrently and returns only
// once the whole tree has been listed:
//
//	res, err := walk.Collect(ctx, "./content", walk.NewOptions())
//	for _, path := range res.Sorted() {
//		fmt.Println(path)
//	}
//
// Directories that cannot be read are recorded in res.Errors by default. Set
// Options.ErrorHandling to ErrorHandlingSkip to drop them silently or to
// ErrorHandlingStop to abort the walk.
//
// Check
//
// Check runs the image checker over every index.md below a root:
//
//	sum, err := walk.Check(ctx, "./content", os.Stdout, walk.CheckOptions{})
//
// Watch
//
// Watch reports created or modified files until the context is canceled:
//
//	err := walk.Watch(ctx, "./content", walk.WatchOptions{}, func(ctx context.Context, msg walk.WatchMessage) error {
//		fmt.Printf("%s %s\n", msg.Event, msg.Path)
//		return nil
//	})

package walk
