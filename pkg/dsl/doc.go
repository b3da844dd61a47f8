// Package dsl builds interactions for consumer tests. Request and response
// definitions mix literal values with matchers; Build resolves them into the
// example values the mock service serves and the matching rules written to
// the contract.
//
//	i, err := dsl.NewInteraction().
//		Given("user 1 exists").
//		UponReceiving("a request for user 1").
//		WithRequest(dsl.Request{
//			Method: "GET",
//			Path:   dsl.Term("/users/1", `/users/\d+`),
//		}).
//		WillRespondWith(dsl.Response{
//			Status: 200,
//			Body: map[string]interface{}{
//				"id":    dsl.Integer(1),
//				"name":  dsl.Like("alice"),
//				"roles": dsl.EachLike("admin", 1),
//			},
//		}).
//		Build()
package dsl
