// Package dsl parses and evaluates convo source, a transcript format that
// interleaves conversation messages with typed function definitions and
// calls.
//
// # Source Overview
//
// A convo file is a list of messages. Each starts with a header line:
//
//	> system
//	You are a helpful assistant.
//
//	# Adds two numbers
//	> add(a:number b:number) -> (
//	    return(add(a b))
//	)
//
//	> define
//	Person = map(name:string age?:int)
//
//	> do
//	@shared total = add(3 4)
//
//	> user
//	The total is {{total}}
//
// Plain messages hold content, messages with {{ }} embeds hold a template
// statement, and function headers hold a Function. Bare {...} and [...]
// literals are sugar for map(...) and array(...).
//
// # Parsing
//
// Parse never fails with an error value; problems are reported in the
// result next to the messages parsed before them:
//
//	res := dsl.Parse(src)
//	if res.Err != nil {
//	    fmt.Println(res.Err.Near)
//	}
//
// # Execution
//
// A Context owns the shared variable table and evaluates statements:
//
//	ctx := dsl.NewContext(dsl.WithLogger(logger))
//	if err := ctx.LoadFunctions(res.Messages, nil); err != nil {
//	    log.Fatal(err)
//	}
//	v, err := ctx.Run(res.Messages)
//
// Function implementations may return an unsettled *Future. Evaluation then
// suspends and the entry point returns a *Future that settles once every
// pending value has resolved:
//
//	if f, ok := v.(*dsl.Future); ok {
//	    v, err = f.Wait(reqCtx)
//	}
//
// # Validation
//
// Arguments and return values of convo functions are checked against
// schemas derived from their declarations with the schema package.
// Mismatches fail with ErrInvalidArgs and ErrInvalidReturnValue.
package dsl
