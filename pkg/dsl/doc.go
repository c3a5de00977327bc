/*
Package dsl parses the compact binding language used to tie access points together.

A binding string is a list of clauses separated by ';'. Each clause binds a left
access point to a right one with ':'. An access point may be piped through named
transforms with '>', and a parenthesized group of access points joined with '&'
forms a composite whose values are aggregated by a single transform:

	text > trim > validateName : name;
	isEnabled : (isLogged & userId > trueWhenNot0) > trueWhenAllTrue

Transforms may also be written inline as a braced block, compiled by the host's
evaluator and registered under a generated name:

	isEnabled > {return value and 10 or 1} : #regOption.selectedIndex

Parsing is batch tolerant: a malformed clause is reported in Result.Issues and
dropped, while the remaining clauses are still returned.

Specs can also be built without parsing:

	b := dsl.New()
	b.Bind(dsl.Side("text").Pipe("trim"), dsl.Side("name"))
	b.Bind(dsl.Side("isEnabled"), dsl.Composite("trueWhenAllTrue",
		dsl.Side("isLogged"),
		dsl.Side("userId").Pipe("trueWhenNot0"),
	))
	specs, err := b.Build()
*/
package dsl
